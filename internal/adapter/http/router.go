package http

import "github.com/labstack/echo/v4"

type Handlers struct {
	Health         *Handler
	Accounts       *AccountHandler
	Offers         *OfferHandler
	Loans          *LoanHandler
	Approvals      *ApprovalHandler
	Escrow         *EscrowHandler
	Reconciliation *ReconciliationHandler
	Webhooks       *WebhookHandler
}

// Register mounts the API. api middleware (idempotency, rate limit) applies
// to everything except health and the executor webhook, which is signed and
// deduplicated on its own.
func Register(e *echo.Echo, h Handlers, api ...echo.MiddlewareFunc) {
	e.Validator = NewValidator()
	e.GET("/health", h.Health.Health)
	e.POST("/webhooks/escrow", h.Webhooks.Escrow)

	g := e.Group("", api...)

	g.POST("/accounts", h.Accounts.Open)
	g.GET("/accounts/:account_id/balance", h.Accounts.Balance)
	g.GET("/accounts/:account_id/transactions", h.Accounts.Transactions)
	g.POST("/accounts/:account_id/deposits", h.Accounts.Deposit)
	g.POST("/accounts/:account_id/withdrawals", h.Accounts.Withdraw)

	g.POST("/offers", h.Offers.Create)
	g.GET("/offers", h.Offers.List)
	g.GET("/offers/:offer_id", h.Offers.Get)
	g.POST("/offers/:offer_id/cancel", h.Offers.Cancel)

	g.POST("/loans", h.Loans.RequestLoan)
	g.GET("/loans/:loan_id", h.Loans.GetLoan)
	g.POST("/loans/:loan_id/approve", h.Approvals.ApproveLoan)
	g.POST("/loans/:loan_id/reject", h.Approvals.RejectLoan)
	g.GET("/loans/:loan_id/decision", h.Approvals.GetDecision)
	g.GET("/approvals/:approval_id", h.Approvals.GetApproval)
	g.POST("/loans/:loan_id/dispute", h.Escrow.RaiseDispute)
	g.POST("/loans/:loan_id/dispute/resolve", h.Approvals.ResolveDispute)
	g.GET("/loans/:loan_id/escrow", h.Escrow.Events)
	g.POST("/loans/:loan_id/repayments/:installment_number", h.Loans.PostRepayment)
	g.POST("/loans/:loan_id/repayments/:installment_number/anticipate", h.Loans.Anticipate)
	g.GET("/loans/:loan_id/repayments/:installment_number/payoff", h.Loans.Quote)

	g.GET("/reconciliation/loans/:loan_id", h.Reconciliation.Loan)
	g.GET("/reconciliation/loans/:loan_id/discrepancies", h.Reconciliation.Discrepancies)
	g.GET("/reconciliation/portfolio", h.Reconciliation.Portfolio)
}
