package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/usecase/approval"
)

type ApprovalHandler struct{ uc *approval.Usecase }

func NewApprovalHandler(uc *approval.Usecase) *ApprovalHandler { return &ApprovalHandler{uc: uc} }

type approveLoanReq struct {
	LoanID              string `param:"loan_id"`
	EvidenceURL         string `json:"evidence_url"           validate:"required,url"`
	ValidatorEmployeeID string `json:"validator_employee_id"  validate:"required,hex32"`
	// canonical date `YYYY-MM-DD`, defaults to today
	ApprovalDate string `json:"approval_date"          validate:"omitempty,datetime=2006-01-02"`
}

func (h *ApprovalHandler) ApproveLoan(c echo.Context) error {
	var req approveLoanReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	in := approval.ApproveInput{
		LoanID:              req.LoanID,
		EvidenceURL:         req.EvidenceURL,
		ValidatorEmployeeID: req.ValidatorEmployeeID,
	}
	if req.ApprovalDate != "" {
		// already validated by the datetime tag
		in.ApprovalDate, _ = time.Parse("2006-01-02", req.ApprovalDate)
	}
	dto, err := h.uc.Approve(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type rejectLoanReq struct {
	LoanID              string `param:"loan_id"`
	ValidatorEmployeeID string `json:"validator_employee_id" validate:"required,hex32"`
	Reason              string `json:"reason"                validate:"max=512"`
}

func (h *ApprovalHandler) RejectLoan(c echo.Context) error {
	var req rejectLoanReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Reject(c.Request().Context(), approval.RejectInput{
		LoanID:              req.LoanID,
		Reason:              req.Reason,
		ValidatorEmployeeID: req.ValidatorEmployeeID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type resolveReq struct {
	LoanID     string `param:"loan_id"`
	Outcome    string `json:"outcome"     validate:"required,oneof=RELEASE REFUND"`
	ResolvedBy string `json:"resolved_by" validate:"required,hex32"`
}

// ResolveDispute settles the disputed hold and moves the loan to ACTIVE or
// CANCELLED with it.
func (h *ApprovalHandler) ResolveDispute(c echo.Context) error {
	var req resolveReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	dto, err := h.uc.ResolveDispute(c.Request().Context(), approval.ResolveInput{
		LoanID:     req.LoanID,
		Outcome:    escrowDomain.Resolution(req.Outcome),
		ResolvedBy: req.ResolvedBy,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) GetDecision(c echo.Context) error {
	a, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *ApprovalHandler) GetApproval(c echo.Context) error {
	a, err := h.uc.GetByApprovalID(c.Request().Context(), c.Param("approval_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
