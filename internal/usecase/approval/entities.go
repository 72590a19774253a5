package approval

import (
	"time"

	domainApproval "p2p-credit-backend/internal/domain/approval"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	domainLoan "p2p-credit-backend/internal/domain/loan"
)

type ApproveInput struct {
	LoanID              string
	EvidenceURL         string
	ValidatorEmployeeID string
	ApprovalDate        time.Time // zero = now
}

type RejectInput struct {
	LoanID              string
	Reason              string
	ValidatorEmployeeID string
}

type ResolveInput struct {
	LoanID     string
	Outcome    escrowDomain.Resolution
	ResolvedBy string
}

// ResolutionDTO is the result of a dispute resolution.
type ResolutionDTO struct {
	LoanID     string                  `json:"loan_id"`
	Outcome    escrowDomain.Resolution `json:"outcome"`
	LoanStatus domainLoan.Status       `json:"loan_status"`
	Hold       *escrowDomain.Hold      `json:"hold"`
}

type ApprovalDTO struct {
	ApprovalID  string                  `json:"approval_id"`
	LoanID      string                  `json:"loan_id"`
	Decision    domainApproval.Decision `json:"decision"`
	EvidenceURL string                  `json:"evidence_url,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	DecidedAt   time.Time               `json:"decided_at"`
	LoanStatus  domainLoan.Status       `json:"loan_status"`
	HoldStatus  escrowDomain.HoldStatus `json:"hold_status"`
}

func toDTO(a *domainApproval.Approval, l *domainLoan.Loan, h *escrowDomain.Hold) *ApprovalDTO {
	dto := &ApprovalDTO{
		ApprovalID:  a.ApprovalID,
		LoanID:      a.LoanID,
		Decision:    a.Decision,
		EvidenceURL: a.EvidenceURL,
		Reason:      a.Reason,
		DecidedAt:   a.DecidedAt,
	}
	if l != nil {
		dto.LoanStatus = l.Status
	}
	if h != nil {
		dto.HoldStatus = h.Status
	}
	return dto
}
