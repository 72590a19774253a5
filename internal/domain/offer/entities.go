package offer

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

var (
	ErrNotFound     = apperror.New(apperror.KindNotFound, "OFFER_NOT_FOUND", "offer not found")
	ErrNoMatchFound = apperror.New(apperror.KindNotFound, "NO_MATCH_FOUND", "no compatible offer found")
	ErrNotOpen      = apperror.New(apperror.KindStateConflict, "OFFER_NOT_OPEN", "offer is not open")
)

type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusMatched   Status = "MATCHED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// MATCHED -> OPEN exists only as the compensation when hold creation fails.
var transitions = map[Status][]Status{
	StatusOpen:    {StatusMatched, StatusCancelled, StatusExpired},
	StatusMatched: {StatusOpen},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type RiskProfile string

const (
	RiskLow    RiskProfile = "LOW"
	RiskMedium RiskProfile = "MEDIUM"
	RiskHigh   RiskProfile = "HIGH"
)

func (r RiskProfile) Valid() bool { return r == RiskLow || r == RiskMedium || r == RiskHigh }

// Table: marketplace_offers. Amount, Rate and TermDays never change after
// creation; Version guards every status compare-and-swap.
type Offer struct {
	ID             string          `gorm:"column:id;primaryKey;size:36" json:"offer_id"`
	InvestorID     string          `gorm:"column:investor_id;size:64;not null;index" json:"investor_id"`
	AccountID      string          `gorm:"column:account_id;size:36;not null" json:"account_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Rate           decimal.Decimal `gorm:"column:rate;type:decimal(10,6);not null" json:"rate"`
	TermDays       int             `gorm:"column:term_days;not null" json:"term_days"`
	RiskProfile    RiskProfile     `gorm:"column:risk_profile;size:8;not null;index:idx_offers_book,priority:2" json:"risk_profile"`
	MinCreditScore int             `gorm:"column:min_credit_score;not null;default:0" json:"min_credit_score"`
	Status         Status          `gorm:"column:status;size:16;not null;index:idx_offers_book,priority:1" json:"status"`
	Version        uint64          `gorm:"column:version;not null;default:1" json:"-"`
	MatchedLoanID  *string         `gorm:"column:matched_loan_id;size:36" json:"matched_loan_id,omitempty"`
	ExpiresAt      *time.Time      `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;index:idx_offers_book,priority:3" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Offer) TableName() string { return "marketplace_offers" }

// Criteria describes a loan request against the offer book.
type Criteria struct {
	Amount      decimal.Decimal
	RiskProfile RiskProfile
	TermDays    int // 0 = any term
	CreditScore int
	AsOf        time.Time
}

// Eligible mirrors the repository filter; used to re-check a candidate.
func (o Offer) Eligible(c Criteria) bool {
	if o.Status != StatusOpen || o.RiskProfile != c.RiskProfile {
		return false
	}
	if o.Amount.LessThan(c.Amount) {
		return false
	}
	if c.TermDays > 0 && o.TermDays != c.TermDays {
		return false
	}
	if o.MinCreditScore > c.CreditScore {
		return false
	}
	return o.ExpiresAt == nil || o.ExpiresAt.After(c.AsOf)
}
