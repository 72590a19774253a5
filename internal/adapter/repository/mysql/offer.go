package mysql

import (
	"context"
	"time"

	offerDomain "p2p-credit-backend/internal/domain/offer"

	"gorm.io/gorm"
)

type OfferRepository struct{ db *gorm.DB }

func NewOfferRepository(db *gorm.DB) *OfferRepository { return &OfferRepository{db: db} }

func (r *OfferRepository) Create(ctx context.Context, o *offerDomain.Offer) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OfferRepository) GetByID(ctx context.Context, id string) (*offerDomain.Offer, error) {
	var out offerDomain.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, offerDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *OfferRepository) FindCandidates(ctx context.Context, c offerDomain.Criteria, limit int) ([]offerDomain.Offer, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND risk_profile = ? AND amount >= ? AND min_credit_score <= ?",
			offerDomain.StatusOpen, c.RiskProfile, c.Amount, c.CreditScore).
		Where("expires_at IS NULL OR expires_at > ?", c.AsOf)
	if c.TermDays > 0 {
		q = q.Where("term_days = ?", c.TermDays)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []offerDomain.Offer
	err := q.Order("rate ASC, created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// CompareAndSwapStatus is a single conditional UPDATE; the WHERE on status and
// version makes concurrent matchers race on the row, exactly one wins.
func (r *OfferRepository) CompareAndSwapStatus(ctx context.Context, id string, version uint64, from, to offerDomain.Status, matchedLoanID *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&offerDomain.Offer{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		Updates(map[string]any{
			"status":          to,
			"version":         gorm.Expr("version + 1"),
			"matched_loan_id": matchedLoanID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OfferRepository) ListExpired(ctx context.Context, asOf time.Time) ([]offerDomain.Offer, error) {
	var out []offerDomain.Offer
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", offerDomain.StatusOpen, asOf).
		Find(&out).Error
	return out, err
}

func (r *OfferRepository) ListOpen(ctx context.Context, risk offerDomain.RiskProfile, limit int) ([]offerDomain.Offer, error) {
	q := r.db.WithContext(ctx).Where("status = ?", offerDomain.StatusOpen)
	if risk != "" {
		q = q.Where("risk_profile = ?", risk)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []offerDomain.Offer
	err := q.Order("rate ASC, created_at ASC, id ASC").Find(&out).Error
	return out, err
}
