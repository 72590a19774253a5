package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	domain "p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/repayment"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/internal/schedule"
	"p2p-credit-backend/internal/usecase/ledger"
)

// PostRepayment settles one installment. The payment must cover principal,
// interest and the penalty accrued so far; anything above that is not taken.
// On any failure the installment stays PENDING/OVERDUE.
func (u *Usecase) PostRepayment(ctx context.Context, in RepaymentInput) (*repayment.Repayment, error) {
	if !in.Amount.IsPositive() {
		return nil, apperror.Validation("amount must be positive")
	}
	return u.settle(ctx, in.LoanID, in.InstallmentNumber, in.Method, func(_ *domain.Loan, rp *repayment.Repayment, now time.Time) (decimal.Decimal, repayment.Status, error) {
		u.penalty.Apply(rp, now)
		due := rp.AmountDue()
		if in.Amount.LessThan(due) {
			return decimal.Zero, "", repayment.ErrBelowAmountDue.WithMessage(
				"installment %d of loan %s: %s due, %s paid", rp.InstallmentNumber, rp.LoanID, due.StringFixed(2), in.Amount.StringFixed(2))
		}
		return due, repayment.StatusPaid, nil
	})
}

// Anticipate pays a PENDING installment ahead of its due date at the
// discounted payoff amount.
func (u *Usecase) Anticipate(ctx context.Context, in AnticipateInput) (*repayment.Repayment, error) {
	return u.settle(ctx, in.LoanID, in.InstallmentNumber, in.Method, func(l *domain.Loan, rp *repayment.Repayment, now time.Time) (decimal.Decimal, repayment.Status, error) {
		amount, err := schedule.Anticipate(*rp, now, schedule.Period(l.Frequency).Days())
		return amount, repayment.StatusAnticipated, err
	})
}

// Quote returns the discounted payoff without paying it.
func (u *Usecase) Quote(ctx context.Context, loanID string, installment int) (decimal.Decimal, error) {
	l, err := u.uow.Repos().Loans.GetByID(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	rs, err := u.uow.Repos().Repayments.ListByLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range rs {
		if rs[i].InstallmentNumber == installment {
			return schedule.Anticipate(rs[i], u.now(), schedule.Period(l.Frequency).Days())
		}
	}
	return decimal.Zero, repayment.ErrNotFound.WithMessage("loan %s has no installment %d", loanID, installment)
}

type chargeFunc func(l *domain.Loan, rp *repayment.Repayment, now time.Time) (decimal.Decimal, repayment.Status, error)

func (u *Usecase) settle(ctx context.Context, loanID string, n int, method repayment.Method, charge chargeFunc) (*repayment.Repayment, error) {
	if method == "" {
		method = repayment.MethodAccount
	}
	if !method.Valid() {
		return nil, apperror.Validation("invalid method %q", method)
	}

	var out *repayment.Repayment
	var completed bool
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusActive {
			return domain.ErrNotActive.WithMessage("loan %s is %s", l.ID, l.Status)
		}
		rp, err := r.Repayments.GetForUpdate(ctx, l.ID, n)
		if err != nil {
			return err
		}
		if !rp.Status.Open() {
			return repayment.ErrAlreadySettled.WithMessage("installment %d of loan %s is %s", n, l.ID, rp.Status)
		}

		now := u.now()
		amount, status, err := charge(l, rp, now)
		if err != nil {
			return err
		}

		ref := fmt.Sprintf("loan:%s:installment:%d", l.ID, n)
		var tx *ledgerDomain.Transaction
		switch method {
		case repayment.MethodAccount:
			_, tx, err = ledger.ApplyTransfer(ctx, r, ledger.Transfer{
				From: l.BorrowerAccountID, To: l.LenderAccountID, Amount: amount,
				TxType: ledgerDomain.TxLoanRepayment, LoanID: l.ID, Reference: ref,
			}, now)
		case repayment.MethodExternal:
			tx, err = ledger.Apply(ctx, r, ledger.Entry{
				AccountID: l.LenderAccountID, Amount: amount, Direction: ledgerDomain.DirectionIn,
				TxType: ledgerDomain.TxLoanRepayment, LoanID: l.ID, Reference: ref,
			}, now)
		}
		if err != nil {
			return err
		}

		rp.Status = status
		rp.TotalPaid = amount
		rp.PaidDate = &now
		rp.Method = method
		rp.TransactionID = &tx.ID
		if err := r.Repayments.Save(ctx, rp); err != nil {
			return err
		}
		out = rp

		all, err := r.Repayments.ListByLoan(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, x := range all {
			if x.Status.Open() {
				return nil
			}
		}
		if err := l.Transition(domain.StatusCompleted, now); err != nil {
			return err
		}
		completed = true
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	log := u.log.WithFields(logrus.Fields{
		"loan_id": loanID, "installment": n, "amount": out.TotalPaid.StringFixed(2), "status": out.Status,
	})
	log.Info("loan: installment settled")
	if completed {
		log.Info("loan: completed")
	}
	return out, nil
}

type SweepResult struct {
	Overdue   int64 `json:"overdue"`
	Defaulted int   `json:"defaulted"`
}

// SweepOverdue marks past-due installments OVERDUE and defaults active loans
// holding an installment overdue for more than defaultAfterDays.
func (u *Usecase) SweepOverdue(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := u.now()
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		n, err := r.Repayments.MarkOverdue(ctx, now)
		res.Overdue = n
		return err
	})
	if err != nil {
		return res, err
	}
	if u.defaultAfterDays <= 0 {
		return res, nil
	}

	cutoff := now.AddDate(0, 0, -u.defaultAfterDays)
	late, err := u.uow.Repos().Repayments.ListOpenDueBefore(ctx, cutoff)
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool)
	for _, rp := range late {
		if seen[rp.LoanID] {
			continue
		}
		seen[rp.LoanID] = true
		changed := false
		err := u.uow.WithinLoanTx(ctx, rp.LoanID, func(r uow.Repos, l *domain.Loan) error {
			if l.Status != domain.StatusActive {
				return nil
			}
			if err := l.Transition(domain.StatusDefaulted, now); err != nil {
				return err
			}
			if err := r.Loans.Save(ctx, l); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			return res, err
		}
		if changed {
			res.Defaulted++
			u.log.WithField("loan_id", rp.LoanID).Warn("loan: defaulted")
		}
	}
	return res, nil
}
