package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

// ErrMismatch is reported, never returned from Reconcile: a mismatch is data
// for review, not a failed call.
var ErrMismatch = apperror.New(apperror.KindReconciliationMismatch, "RECONCILIATION_MISMATCH", "ledger, escrow events and executor disagree")

type DiscrepancyType string

const (
	DiscrepancyDepositMismatch     DiscrepancyType = "DEPOSIT_MISMATCH"
	DiscrepancyReleaseMismatch     DiscrepancyType = "RELEASE_MISMATCH"
	DiscrepancyRefundMismatch      DiscrepancyType = "REFUND_MISMATCH"
	DiscrepancyNetMismatch         DiscrepancyType = "NET_MISMATCH"
	DiscrepancyConservation        DiscrepancyType = "CONSERVATION_VIOLATION"
	DiscrepancyExecutorState       DiscrepancyType = "EXECUTOR_STATE_MISMATCH"
	DiscrepancyExecutorUnreachable DiscrepancyType = "EXECUTOR_UNREACHABLE"
	DiscrepancyEventOrder          DiscrepancyType = "EVENT_ORDER"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Table: reconciliation_discrepancies (append-only, for manual review).
type Discrepancy struct {
	ID          string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	RunID       string          `gorm:"column:run_id;size:36;not null;index" json:"run_id"`
	LoanID      string          `gorm:"column:loan_id;size:36;not null;index" json:"loan_id"`
	HoldID      string          `gorm:"column:hold_id;size:36" json:"hold_id,omitempty"`
	Type        DiscrepancyType `gorm:"column:type;size:32;not null" json:"type"`
	Severity    Severity        `gorm:"column:severity;size:16;not null" json:"severity"`
	Expected    decimal.Decimal `gorm:"column:expected;type:decimal(20,2);not null" json:"expected"`
	Actual      decimal.Decimal `gorm:"column:actual;type:decimal(20,2);not null" json:"actual"`
	Description string          `gorm:"column:description;type:text" json:"description"`
	DetectedAt  time.Time       `gorm:"column:detected_at;not null" json:"detected_at"`
}

func (Discrepancy) TableName() string { return "reconciliation_discrepancies" }
