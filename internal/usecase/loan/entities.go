package loan

import (
	"time"

	"github.com/shopspring/decimal"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	domain "p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/repayment"
)

type RequestLoanInput struct {
	BorrowerID        string
	BorrowerAccountID string
	Amount            decimal.Decimal
	TermDays          int
	RiskProfile       offer.RiskProfile
	CreditScore       int
	Frequency         domain.Frequency
}

type RepaymentInput struct {
	LoanID            string
	InstallmentNumber int
	Amount            decimal.Decimal
	Method            repayment.Method
}

type AnticipateInput struct {
	LoanID            string
	InstallmentNumber int
	Method            repayment.Method
}

// LoanDTO is what getLoanStatus returns: the contract, its escrow state and
// the schedule with penalties evaluated at AsOf.
type LoanDTO struct {
	LoanID      string                  `json:"loan_id"`
	OfferID     string                  `json:"offer_id,omitempty"`
	BorrowerID  string                  `json:"borrower_id"`
	LenderID    string                  `json:"lender_id"`
	Principal   decimal.Decimal         `json:"principal"`
	Rate        decimal.Decimal         `json:"interest_rate"`
	TermDays    int                     `json:"term_days"`
	Frequency   domain.Frequency        `json:"frequency"`
	Status      domain.Status           `json:"status"`
	HoldStatus  escrowDomain.HoldStatus `json:"hold_status,omitempty"`
	HoldID      string                  `json:"hold_id,omitempty"`
	Schedule    []repayment.Repayment   `json:"schedule"`
	Outstanding decimal.Decimal         `json:"outstanding"`
	AsOf        time.Time               `json:"as_of"`
	CreatedAt   time.Time               `json:"created_at"`
}

func toDTO(l *domain.Loan, h *escrowDomain.Hold, sched []repayment.Repayment, asOf time.Time) *LoanDTO {
	dto := &LoanDTO{
		LoanID:      l.ID,
		BorrowerID:  l.BorrowerID,
		LenderID:    l.LenderID,
		Principal:   l.Principal,
		Rate:        l.InterestRate,
		TermDays:    l.TermDays,
		Frequency:   l.Frequency,
		Status:      l.Status,
		Schedule:    sched,
		Outstanding: decimal.Zero,
		AsOf:        asOf,
		CreatedAt:   l.CreatedAt,
	}
	if l.OfferID != nil {
		dto.OfferID = *l.OfferID
	}
	if h != nil {
		dto.HoldStatus, dto.HoldID = h.Status, h.ID
	}
	if dto.Schedule == nil {
		dto.Schedule = []repayment.Repayment{}
	}
	for _, r := range sched {
		if r.Status.Open() {
			dto.Outstanding = dto.Outstanding.Add(r.AmountDue())
		}
	}
	return dto
}
