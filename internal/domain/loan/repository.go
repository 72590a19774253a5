package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, loanID string) (*Loan, error)
	// GetByIDForUpdate locks the loan row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]Loan, error)
	Save(ctx context.Context, l *Loan) error
}
