package mysql

import (
	"context"

	accountDomain "p2p-credit-backend/internal/domain/account"

	"gorm.io/gorm"
)

type AccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) Create(ctx context.Context, a *accountDomain.Account) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AccountRepository) Save(ctx context.Context, a *accountDomain.Account) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*accountDomain.Account, error) {
	var out accountDomain.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, accountDomain.ErrNotFound)
	}
	return &out, nil
}

func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*accountDomain.Account, error) {
	var out accountDomain.Account
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, notFound(err, accountDomain.ErrNotFound)
	}
	return &out, nil
}
