package offer

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, o *Offer) error
	GetByID(ctx context.Context, id string) (*Offer, error)
	// FindCandidates returns eligible OPEN offers ordered by rate ASC,
	// created_at ASC (FIFO on ties).
	FindCandidates(ctx context.Context, c Criteria, limit int) ([]Offer, error)
	// CompareAndSwapStatus moves the offer from `from` to `to` only if its
	// version still equals `version`. Returns false when another writer won.
	CompareAndSwapStatus(ctx context.Context, id string, version uint64, from, to Status, matchedLoanID *string) (bool, error)
	ListExpired(ctx context.Context, asOf time.Time) ([]Offer, error)
	ListOpen(ctx context.Context, risk RiskProfile, limit int) ([]Offer, error)
}
