package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-credit-backend/internal/usecase/escrow"
)

type EscrowHandler struct{ escrow *escrow.Service }

func NewEscrowHandler(s *escrow.Service) *EscrowHandler { return &EscrowHandler{escrow: s} }

type disputeReq struct {
	LoanID string `param:"loan_id"`
	Reason string `json:"reason" validate:"required,max=512"`
}

func (h *EscrowHandler) RaiseDispute(c echo.Context) error {
	var req disputeReq
	if ok, err := decode(c, &req); !ok {
		return err
	}
	hold, err := h.escrow.RaiseDispute(c.Request().Context(), req.LoanID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// Events lists the hash-chained escrow events of a loan in sequence order.
func (h *EscrowHandler) Events(c echo.Context) error {
	loanID := c.Param("loan_id")
	hold, err := h.escrow.GetHold(c.Request().Context(), loanID)
	if err != nil {
		return fail(c, err)
	}
	events, err := h.escrow.ListEvents(c.Request().Context(), loanID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"hold": hold, "events": events})
}
