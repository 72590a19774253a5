package mysql

import (
	"context"
	"errors"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"

	"gorm.io/gorm"
)

type HoldRepository struct{ db *gorm.DB }

func NewHoldRepository(db *gorm.DB) *HoldRepository { return &HoldRepository{db: db} }

func (r *HoldRepository) Create(ctx context.Context, h *escrowDomain.Hold) error {
	err := r.db.WithContext(ctx).Create(h).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return escrowDomain.ErrEscrowAlreadyExists.WithMessage("loan %s already has an active hold", h.LoanID)
	}
	return err
}

func (r *HoldRepository) Save(ctx context.Context, h *escrowDomain.Hold) error {
	return r.db.WithContext(ctx).Save(h).Error
}

func (r *HoldRepository) GetByID(ctx context.Context, id string) (*escrowDomain.Hold, error) {
	var out escrowDomain.Hold
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, escrowDomain.ErrHoldNotFound)
	}
	return &out, nil
}

func (r *HoldRepository) GetByIDForUpdate(ctx context.Context, id string) (*escrowDomain.Hold, error) {
	var out escrowDomain.Hold
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, escrowDomain.ErrHoldNotFound)
	}
	return &out, nil
}

func (r *HoldRepository) GetLatestByLoanID(ctx context.Context, loanID string) (*escrowDomain.Hold, error) {
	return r.latest(r.db.WithContext(ctx), loanID)
}

func (r *HoldRepository) GetLatestByLoanIDForUpdate(ctx context.Context, loanID string) (*escrowDomain.Hold, error) {
	return r.latest(r.db.WithContext(ctx).Clauses(forUpdate), loanID)
}

func (r *HoldRepository) latest(q *gorm.DB, loanID string) (*escrowDomain.Hold, error) {
	var out escrowDomain.Hold
	err := q.Where("loan_id = ?", loanID).
		Order("created_at DESC, id DESC").
		First(&out).Error
	if err != nil {
		return nil, notFound(err, escrowDomain.ErrHoldNotFound)
	}
	return &out, nil
}

func (r *HoldRepository) HasActive(ctx context.Context, loanID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&escrowDomain.Hold{}).
		Where("active_loan_id = ?", loanID).
		Count(&n).Error
	return n > 0, err
}

func (r *HoldRepository) ListByStatus(ctx context.Context, statuses ...escrowDomain.HoldStatus) ([]escrowDomain.Hold, error) {
	var out []escrowDomain.Hold
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
