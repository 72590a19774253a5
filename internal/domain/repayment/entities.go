package repayment

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/pkg/apperror"
)

var (
	ErrNotFound         = apperror.New(apperror.KindNotFound, "INSTALLMENT_NOT_FOUND", "installment not found")
	ErrAlreadySettled   = apperror.New(apperror.KindStateConflict, "INSTALLMENT_SETTLED", "installment is already settled")
	ErrBelowAmountDue   = apperror.New(apperror.KindValidation, "PAYMENT_BELOW_DUE", "payment does not cover the amount due")
	ErrNotAnticipatable = apperror.New(apperror.KindStateConflict, "NOT_ANTICIPATABLE", "installment cannot be anticipated")
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusPaid        Status = "PAID"
	StatusOverdue     Status = "OVERDUE"
	StatusAnticipated Status = "ANTICIPATED"
)

// Open reports whether the installment still expects a payment.
func (s Status) Open() bool { return s == StatusPending || s == StatusOverdue }

type Method string

const (
	MethodAccount  Method = "ACCOUNT"
	MethodExternal Method = "EXTERNAL"
)

func (m Method) Valid() bool { return m == MethodAccount || m == MethodExternal }

// Table: repayments. PenaltyComponent is only persisted when the
// installment is settled; until then it is computed on read.
type Repayment struct {
	ID                 string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	LoanID             string          `gorm:"column:loan_id;size:36;not null;uniqueIndex:ux_repayments_loan_installment,priority:1" json:"loan_id"`
	InstallmentNumber  int             `gorm:"column:installment_number;not null;uniqueIndex:ux_repayments_loan_installment,priority:2" json:"installment_number"`
	PrincipalComponent decimal.Decimal `gorm:"column:principal_component;type:decimal(20,2);not null" json:"principal_component"`
	InterestComponent  decimal.Decimal `gorm:"column:interest_component;type:decimal(20,2);not null" json:"interest_component"`
	PenaltyComponent   decimal.Decimal `gorm:"column:penalty_component;type:decimal(20,2);not null" json:"penalty_component"`
	TotalPaid          decimal.Decimal `gorm:"column:total_paid;type:decimal(20,2);not null" json:"total_paid"`
	DueDate            time.Time       `gorm:"column:due_date;not null;index" json:"due_date"`
	PaidDate           *time.Time      `gorm:"column:paid_date" json:"paid_date,omitempty"`
	Status             Status          `gorm:"column:status;size:16;not null;index" json:"status"`
	Method             Method          `gorm:"column:method;size:16" json:"method,omitempty"`
	TransactionID      *string         `gorm:"column:transaction_id;size:36" json:"transaction_id,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Repayment) TableName() string { return "repayments" }

// Installment is the scheduled amount (principal + interest).
func (r Repayment) Installment() decimal.Decimal {
	return r.PrincipalComponent.Add(r.InterestComponent)
}

// AmountDue is the installment plus whatever penalty is currently set.
func (r Repayment) AmountDue() decimal.Decimal {
	return r.Installment().Add(r.PenaltyComponent)
}
