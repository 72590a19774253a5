package mysql

import (
	"context"
	"errors"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"

	"gorm.io/gorm"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

// Append inserts an event; a second insert with the same event_hash is
// reported as ErrDuplicateEvent (unique index).
func (r *EventRepository) Append(ctx context.Context, e *escrowDomain.Event) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return escrowDomain.ErrDuplicateEvent.WithMessage("event %s already recorded", e.EventHash)
	}
	return err
}

func (r *EventRepository) GetByHash(ctx context.Context, hash string) (*escrowDomain.Event, error) {
	var out escrowDomain.Event
	if err := r.db.WithContext(ctx).Where("event_hash = ?", hash).First(&out).Error; err != nil {
		return nil, notFound(err, escrowDomain.ErrEventNotFound)
	}
	return &out, nil
}

func (r *EventRepository) ListByLoan(ctx context.Context, loanID string) ([]escrowDomain.Event, error) {
	var out []escrowDomain.Event
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("sequence ASC").
		Find(&out).Error
	return out, err
}

func (r *EventRepository) NextSequence(ctx context.Context, loanID string) (int, error) {
	var max int
	row := r.db.WithContext(ctx).
		Model(&escrowDomain.Event{}).
		Where("loan_id = ?", loanID).
		Select("COALESCE(MAX(sequence), 0)").
		Row()
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}
