package escrow

import "context"

type HoldRepository interface {
	Create(ctx context.Context, h *Hold) error
	GetByID(ctx context.Context, id string) (*Hold, error)
	GetByIDForUpdate(ctx context.Context, id string) (*Hold, error)
	// GetLatestByLoanID returns the most recent hold of a loan, active or not.
	GetLatestByLoanID(ctx context.Context, loanID string) (*Hold, error)
	GetLatestByLoanIDForUpdate(ctx context.Context, loanID string) (*Hold, error)
	HasActive(ctx context.Context, loanID string) (bool, error)
	ListByStatus(ctx context.Context, statuses ...HoldStatus) ([]Hold, error)
	Save(ctx context.Context, h *Hold) error
}

type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	GetByHash(ctx context.Context, hash string) (*Event, error)
	ListByLoan(ctx context.Context, loanID string) ([]Event, error)
	NextSequence(ctx context.Context, loanID string) (int, error)
}
