package mysql

import (
	"context"

	ledgerDomain "p2p-credit-backend/internal/domain/ledger"

	"gorm.io/gorm"
)

type TransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *ledgerDomain.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, f ledgerDomain.Filter) ([]ledgerDomain.Transaction, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if f.LoanID != "" {
		q = q.Where("loan_id = ?", f.LoanID)
	}
	if f.TxType != "" {
		q = q.Where("tx_type = ?", f.TxType)
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []ledgerDomain.Transaction
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (r *TransactionRepository) ListByLoan(ctx context.Context, loanID string) ([]ledgerDomain.Transaction, error) {
	var out []ledgerDomain.Transaction
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
