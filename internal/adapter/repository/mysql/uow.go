package mysql

import (
	"context"

	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(db *gorm.DB) uow.Repos {
	return uow.Repos{
		Accounts:      &AccountRepository{db: db},
		Transactions:  &TransactionRepository{db: db},
		Offers:        &OfferRepository{db: db},
		Loans:         &LoanRepository{db: db},
		Holds:         &HoldRepository{db: db},
		Events:        &EventRepository{db: db},
		Repayments:    &RepaymentRepository{db: db},
		Approvals:     &ApprovalRepository{db: db},
		Discrepancies: &DiscrepancyRepository{db: db},
	}
}

func (u *GormUoW) Repos() uow.Repos { return reposFor(u.db) }

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}
