package escrow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

var (
	ErrHoldNotFound        = apperror.New(apperror.KindNotFound, "HOLD_NOT_FOUND", "hold not found")
	ErrEventNotFound       = apperror.New(apperror.KindNotFound, "ESCROW_EVENT_NOT_FOUND", "escrow event not found")
	ErrEscrowAlreadyExists = apperror.New(apperror.KindStateConflict, "ESCROW_ALREADY_EXISTS", "an active hold already exists for this loan")
	ErrInvalidEscrowState  = apperror.New(apperror.KindStateConflict, "INVALID_ESCROW_STATE", "hold is not in a state that allows this transition")
	ErrOutOfOrderEvent     = apperror.New(apperror.KindStateConflict, "OUT_OF_ORDER_EVENT", "escrow event received out of order")
	ErrDuplicateEvent      = apperror.New(apperror.KindStateConflict, "DUPLICATE_EVENT", "escrow event already recorded")
	ErrExecutorRejected    = apperror.New(apperror.KindStateConflict, "ESCROW_EXECUTOR_REJECTED", "escrow executor rejected the operation")
)

type HoldStatus string

const (
	HoldPending  HoldStatus = "PENDING"
	HoldDispute  HoldStatus = "DISPUTE"
	HoldResolved HoldStatus = "RESOLVED"
	HoldReleased HoldStatus = "RELEASED"
	HoldRefunded HoldStatus = "REFUNDED"
	HoldFailed   HoldStatus = "FAILED"
)

// NONE -> PENDING is creation; RESOLVED always ends in RELEASED or REFUNDED.
var holdTransitions = map[HoldStatus][]HoldStatus{
	HoldPending:  {HoldReleased, HoldRefunded, HoldDispute, HoldFailed},
	HoldDispute:  {HoldResolved},
	HoldResolved: {HoldReleased, HoldRefunded},
}

func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	for _, n := range holdTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s HoldStatus) Terminal() bool {
	return s == HoldReleased || s == HoldRefunded || s == HoldFailed
}

// Resolution is the outcome chosen when a dispute is resolved.
type Resolution string

const (
	ResolutionRelease Resolution = "RELEASE"
	ResolutionRefund  Resolution = "REFUND"
)

func (r Resolution) Valid() bool { return r == ResolutionRelease || r == ResolutionRefund }

// Table: holds. ActiveLoanID equals LoanID while the hold is non-terminal and
// is NULL afterwards; its unique index keeps one active hold per loan.
type Hold struct {
	ID                   string          `gorm:"column:id;primaryKey;size:36" json:"hold_id"`
	LoanID               string          `gorm:"column:loan_id;size:36;not null;index" json:"loan_id"`
	ActiveLoanID         *string         `gorm:"column:active_loan_id;size:36;uniqueIndex:ux_holds_active_loan" json:"-"`
	InvestorAccountID    string          `gorm:"column:investor_account_id;size:36;not null" json:"investor_account_id"`
	EscrowAccountID      string          `gorm:"column:escrow_account_id;size:36;not null" json:"escrow_account_id"`
	BeneficiaryAccountID string          `gorm:"column:beneficiary_account_id;size:36;not null" json:"beneficiary_account_id"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status               HoldStatus      `gorm:"column:status;size:16;not null;index" json:"status"`
	Resolution           Resolution      `gorm:"column:resolution;size:16" json:"resolution,omitempty"`
	ExternalStatus       ExecutorState   `gorm:"column:external_status;size:16" json:"external_status"`
	DepositTxRef         string          `gorm:"column:deposit_tx_ref;size:128" json:"deposit_tx_ref,omitempty"`
	SettlementTxRef      string          `gorm:"column:settlement_tx_ref;size:128" json:"settlement_tx_ref,omitempty"`
	AuthorizedBy         string          `gorm:"column:authorized_by;size:64" json:"authorized_by,omitempty"`
	Reason               string          `gorm:"column:reason;type:text" json:"reason,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	ResolvedAt           *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Hold) TableName() string { return "holds" }

// Transition is the only place hold status is written.
func (h *Hold) Transition(next HoldStatus, at time.Time) error {
	if !h.Status.CanTransitionTo(next) {
		return ErrInvalidEscrowState.WithMessage("hold %s: %s -> %s", h.ID, h.Status, next)
	}
	h.Status = next
	if next.Terminal() {
		h.ActiveLoanID = nil
		h.ResolvedAt = &at
	}
	return nil
}

// CanSettle reports whether the hold may move to target (RELEASED or
// REFUNDED): from PENDING, or from RESOLVED toward the chosen outcome.
func (h *Hold) CanSettle(target HoldStatus) bool {
	switch h.Status {
	case HoldPending:
		return true
	case HoldResolved:
		return (target == HoldReleased && h.Resolution == ResolutionRelease) ||
			(target == HoldRefunded && h.Resolution == ResolutionRefund)
	}
	return false
}

type EventType string

const (
	EventCreated  EventType = "CREATED"
	EventDeposit  EventType = "DEPOSIT"
	EventReleased EventType = "RELEASED"
	EventRefunded EventType = "REFUNDED"
	EventDispute  EventType = "DISPUTE"
	EventResolved EventType = "RESOLVED"
)

// Table: escrow_events (append-only).
type Event struct {
	ID                  string          `gorm:"column:id;primaryKey;size:36" json:"event_id"`
	LoanID              string          `gorm:"column:loan_id;size:36;not null;index:idx_events_loan_seq,priority:1" json:"loan_id"`
	HoldID              string          `gorm:"column:hold_id;size:36;not null;index" json:"hold_id"`
	Type                EventType       `gorm:"column:event_type;size:16;not null" json:"event_type"`
	Amount              decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Sequence            int             `gorm:"column:sequence;not null;index:idx_events_loan_seq,priority:2" json:"sequence"`
	ExternalTxReference string          `gorm:"column:external_tx_reference;size:128" json:"external_tx_reference,omitempty"`
	EventHash           string          `gorm:"column:event_hash;size:64;not null;uniqueIndex" json:"event_hash"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Event) TableName() string { return "escrow_events" }

// EventHash is the deterministic idempotency key of an escrow transition:
// sha256(loan_id|type|amount|sequence) in hex.
func EventHash(loanID string, t EventType, amount decimal.Decimal, sequence int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", loanID, t, amount.StringFixed(2), sequence)))
	return hex.EncodeToString(sum[:])
}

// NewEvent builds an event with its hash filled in.
func NewEvent(id string, h *Hold, t EventType, sequence int, txRef string, at time.Time) Event {
	return Event{
		ID:                  id,
		LoanID:              h.LoanID,
		HoldID:              h.ID,
		Type:                t,
		Amount:              h.Amount,
		Sequence:            sequence,
		ExternalTxReference: txRef,
		EventHash:           EventHash(h.LoanID, t, h.Amount, sequence),
		CreatedAt:           at,
	}
}
