package approval

import (
	"time"
)

type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// Table: approvals. One underwriting decision per loan (unique loan_id).
type Approval struct {
	ID string `gorm:"column:id;primaryKey;size:36"`
	// Public identifier (32-char lowercase hex)
	ApprovalID          string    `gorm:"column:approval_id;type:char(32);not null;uniqueIndex"`
	LoanID              string    `gorm:"column:loan_id;size:36;not null;uniqueIndex:ux_approvals_loan"`
	Decision            Decision  `gorm:"column:decision;size:16;not null"`
	EvidenceURL         string    `gorm:"column:evidence_url;type:text"`
	Reason              string    `gorm:"column:reason;type:text"`
	ValidatorEmployeeID string    `gorm:"column:validator_employee_id;size:64;not null"`
	DecidedAt           time.Time `gorm:"column:decided_at;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Approval) TableName() string { return "approvals" }
