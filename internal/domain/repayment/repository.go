package repayment

import (
	"context"
	"time"
)

type Repository interface {
	CreateBatch(ctx context.Context, rs []Repayment) error
	ListByLoan(ctx context.Context, loanID string) ([]Repayment, error)
	GetForUpdate(ctx context.Context, loanID string, installment int) (*Repayment, error)
	// ListOpenDueBefore returns PENDING/OVERDUE installments due strictly before t.
	ListOpenDueBefore(ctx context.Context, t time.Time) ([]Repayment, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	Save(ctx context.Context, r *Repayment) error
}
