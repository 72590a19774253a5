package uow

import (
	"context"

	"p2p-credit-backend/internal/domain/account"
	"p2p-credit-backend/internal/domain/approval"
	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/reconciliation"
	"p2p-credit-backend/internal/domain/repayment"
)

// Repos is the set of repositories bound to one connection or transaction.
type Repos struct {
	Accounts      account.Repository
	Transactions  ledger.Repository
	Offers        offer.Repository
	Loans         loan.Repository
	Holds         escrow.HoldRepository
	Events        escrow.EventRepository
	Repayments    repayment.Repository
	Approvals     approval.Repository
	Discrepancies reconciliation.Repository
}

type UnitOfWork interface {
	// Repos bound to the root connection, for reads outside a transaction.
	// Never call it from inside WithinTx.
	Repos() Repos
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
