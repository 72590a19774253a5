package reconciliation

import "context"

type Repository interface {
	CreateBatch(ctx context.Context, ds []Discrepancy) error
	ListByLoan(ctx context.Context, loanID string) ([]Discrepancy, error)
}
