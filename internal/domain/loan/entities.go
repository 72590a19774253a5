package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/pkg/apperror"
)

var (
	ErrNotFound          = apperror.New(apperror.KindNotFound, "LOAN_NOT_FOUND", "loan not found")
	ErrInvalidTransition = apperror.New(apperror.KindStateConflict, "INVALID_LOAN_TRANSITION", "invalid loan status transition")
	ErrAlreadyApproved   = apperror.New(apperror.KindStateConflict, "LOAN_ALREADY_DECIDED", "loan already has an underwriting decision")
	ErrNotActive         = apperror.New(apperror.KindStateConflict, "LOAN_NOT_ACTIVE", "loan is not active")
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusDefaulted Status = "DEFAULTED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending, StatusCancelled},
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusDefaulted},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDefaulted || s == StatusCancelled
}

// Frequency is the installment period.
type Frequency string

const (
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyWeekly  Frequency = "WEEKLY"
)

// Table: loan_contracts
type Loan struct {
	ID                string            `gorm:"column:id;primaryKey;size:36" json:"loan_id"`
	OfferID           *string           `gorm:"column:offer_id;size:36;index" json:"offer_id,omitempty"`
	BorrowerID        string            `gorm:"column:borrower_id;size:64;not null;index:idx_loans_borrower" json:"borrower_id"`
	BorrowerAccountID string            `gorm:"column:borrower_account_id;size:36;not null" json:"borrower_account_id"`
	LenderID          string            `gorm:"column:lender_id;size:64;not null" json:"lender_id"`
	LenderAccountID   string            `gorm:"column:lender_account_id;size:36;not null" json:"lender_account_id"`
	Principal         decimal.Decimal   `gorm:"column:principal;type:decimal(20,2);not null" json:"principal"`
	InterestRate      decimal.Decimal   `gorm:"column:interest_rate;type:decimal(10,6);not null" json:"interest_rate"`
	TermDays          int               `gorm:"column:term_days;not null" json:"term_days"`
	Installments      int               `gorm:"column:installments;not null" json:"installments"`
	Frequency         Frequency         `gorm:"column:frequency;size:16;not null" json:"frequency"`
	RiskProfile       offer.RiskProfile `gorm:"column:risk_profile;size:8;not null" json:"risk_profile"`
	CreditScore       int               `gorm:"column:credit_score" json:"credit_score"`
	Status            Status            `gorm:"column:status;size:16;not null;index" json:"status"`
	StatusUpdatedAt   time.Time         `gorm:"column:status_updated_at" json:"status_updated_at"`
	SignedAt          *time.Time        `gorm:"column:signed_at" json:"signed_at,omitempty"`
	DisbursedAt       *time.Time        `gorm:"column:disbursed_at" json:"disbursed_at,omitempty"`
	ClosedAt          *time.Time        `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loan_contracts" }

// Transition is the only place loan status is written.
func (l *Loan) Transition(next Status, at time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return ErrInvalidTransition.WithMessage("loan %s: %s -> %s", l.ID, l.Status, next)
	}
	l.Status = next
	l.StatusUpdatedAt = at
	switch next {
	case StatusActive:
		l.SignedAt = &at
		l.DisbursedAt = &at
	case StatusCompleted, StatusDefaulted, StatusCancelled:
		l.ClosedAt = &at
	}
	return nil
}
