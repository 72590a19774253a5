package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-credit-backend/internal/usecase/reconciliation"
)

type ReconciliationHandler struct{ svc *reconciliation.Service }

func NewReconciliationHandler(s *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{svc: s}
}

// Loan runs a reconciliation for one loan. A mismatch is a finding, not a
// request failure, so the report comes back with 200 either way.
func (h *ReconciliationHandler) Loan(c echo.Context) error {
	report, err := h.svc.Reconcile(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *ReconciliationHandler) Portfolio(c echo.Context) error {
	report, err := h.svc.ReconcilePortfolio(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *ReconciliationHandler) Discrepancies(c echo.Context) error {
	loanID := c.Param("loan_id")
	ds, err := h.svc.Discrepancies(c.Request().Context(), loanID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": loanID, "discrepancies": ds})
}
