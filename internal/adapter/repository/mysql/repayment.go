package mysql

import (
	"context"
	"time"

	repaymentDomain "p2p-credit-backend/internal/domain/repayment"

	"gorm.io/gorm"
)

type RepaymentRepository struct{ db *gorm.DB }

func NewRepaymentRepository(db *gorm.DB) *RepaymentRepository {
	return &RepaymentRepository{db: db}
}

func (r *RepaymentRepository) CreateBatch(ctx context.Context, rs []repaymentDomain.Repayment) error {
	if len(rs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rs).Error
}

func (r *RepaymentRepository) Save(ctx context.Context, rp *repaymentDomain.Repayment) error {
	return r.db.WithContext(ctx).Save(rp).Error
}

func (r *RepaymentRepository) ListByLoan(ctx context.Context, loanID string) ([]repaymentDomain.Repayment, error) {
	var out []repaymentDomain.Repayment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("installment_number ASC").
		Find(&out).Error
	return out, err
}

func (r *RepaymentRepository) GetForUpdate(ctx context.Context, loanID string, installment int) (*repaymentDomain.Repayment, error) {
	var out repaymentDomain.Repayment
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("loan_id = ? AND installment_number = ?", loanID, installment).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, repaymentDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *RepaymentRepository) ListOpenDueBefore(ctx context.Context, t time.Time) ([]repaymentDomain.Repayment, error) {
	var out []repaymentDomain.Repayment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND due_date < ?",
			[]repaymentDomain.Status{repaymentDomain.StatusPending, repaymentDomain.StatusOverdue}, t).
		Order("due_date ASC, loan_id ASC, installment_number ASC").
		Find(&out).Error
	return out, err
}

// MarkOverdue flips PENDING installments past their due date to OVERDUE.
// Penalties are not written here; they stay lazy until payment.
func (r *RepaymentRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&repaymentDomain.Repayment{}).
		Where("status = ? AND due_date < ?", repaymentDomain.StatusPending, asOf).
		Update("status", repaymentDomain.StatusOverdue)
	return res.RowsAffected, res.Error
}
