package mysql

import (
	"context"

	reconDomain "p2p-credit-backend/internal/domain/reconciliation"

	"gorm.io/gorm"
)

type DiscrepancyRepository struct{ db *gorm.DB }

func NewDiscrepancyRepository(db *gorm.DB) *DiscrepancyRepository {
	return &DiscrepancyRepository{db: db}
}

func (r *DiscrepancyRepository) CreateBatch(ctx context.Context, ds []reconDomain.Discrepancy) error {
	if len(ds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ds).Error
}

func (r *DiscrepancyRepository) ListByLoan(ctx context.Context, loanID string) ([]reconDomain.Discrepancy, error) {
	var out []reconDomain.Discrepancy
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("detected_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
