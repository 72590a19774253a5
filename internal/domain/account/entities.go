package account

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

var (
	ErrNotFound      = apperror.New(apperror.KindNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	ErrNotActive     = apperror.New(apperror.KindStateConflict, "ACCOUNT_NOT_ACTIVE", "account is not active")
	ErrInvalidStatus = apperror.New(apperror.KindStateConflict, "INVALID_ACCOUNT_TRANSITION", "invalid account status transition")
	ErrNonZeroClose  = apperror.New(apperror.KindStateConflict, "ACCOUNT_NOT_EMPTY", "account balance must be zero to close")
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusClosed  Status = "CLOSED"
)

var transitions = map[Status][]Status{
	StatusActive:  {StatusBlocked, StatusClosed},
	StatusBlocked: {StatusActive, StatusClosed},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Kind tags what an account is used for. ESCROW accounts are custody
// sub-accounts opened per hold.
type Kind string

const (
	KindInvestor Kind = "INVESTOR"
	KindBorrower Kind = "BORROWER"
	KindEscrow   Kind = "ESCROW"
)

func (k Kind) Valid() bool {
	return k == KindInvestor || k == KindBorrower || k == KindEscrow
}

// Table: accounts. Balance is the materialized value, only mutated together
// with a transactions row.
type Account struct {
	ID        string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	OwnerID   string          `gorm:"column:owner_id;size:64;not null;index:idx_accounts_owner" json:"owner_id"`
	Kind      Kind            `gorm:"column:kind;size:16;not null" json:"kind"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null" json:"balance"`
	Status    Status          `gorm:"column:status;size:16;not null" json:"status"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Transition applies a status change, enforcing the transition table.
func (a *Account) Transition(next Status) error {
	if !a.Status.CanTransitionTo(next) {
		return ErrInvalidStatus.WithMessage("account %s: %s -> %s", a.ID, a.Status, next)
	}
	if next == StatusClosed && !a.Balance.IsZero() {
		return ErrNonZeroClose.WithMessage("account %s has balance %s", a.ID, a.Balance.StringFixed(2))
	}
	a.Status = next
	return nil
}
