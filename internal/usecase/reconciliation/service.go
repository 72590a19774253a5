// Package reconciliation compares three independent views of a loan's money:
// the escrow event log, the ledger rows tagged with the loan and the state
// reported by the escrow executor. It only reads them; disagreements are
// written to the discrepancy log for review.
package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	reconDomain "p2p-credit-backend/internal/domain/reconciliation"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/pkg/id"
)

// StatusReader is the part of the escrow executor reconciliation needs.
type StatusReader interface {
	GetStatus(ctx context.Context, holdID string) (escrowDomain.ExecutorState, error)
}

type Service struct {
	uow  uow.UnitOfWork
	exec StatusReader
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewService(u uow.UnitOfWork, exec StatusReader, log logrus.FieldLogger) *Service {
	return &Service{uow: u, exec: exec, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type EscrowTotals struct {
	Deposited decimal.Decimal `json:"deposited"`
	Released  decimal.Decimal `json:"released"`
	Refunded  decimal.Decimal `json:"refunded"`
}

type LedgerTotals struct {
	Reserved  decimal.Decimal `json:"reserved"`
	Disbursed decimal.Decimal `json:"disbursed"`
	Refunded  decimal.Decimal `json:"refunded"`
	Custody   decimal.Decimal `json:"custody"`
}

type Report struct {
	RunID         string                     `json:"run_id"`
	LoanID        string                     `json:"loan_id"`
	HoldID        string                     `json:"hold_id"`
	HoldStatus    escrowDomain.HoldStatus    `json:"hold_status"`
	HoldAmount    decimal.Decimal            `json:"hold_amount"`
	ExecutorState escrowDomain.ExecutorState `json:"executor_state,omitempty"`
	Escrow        EscrowTotals               `json:"escrow"`
	Ledger        LedgerTotals               `json:"ledger"`
	Matched       bool                       `json:"matched"`
	Discrepancies []reconDomain.Discrepancy  `json:"discrepancies"`
	CheckedAt     time.Time                  `json:"checked_at"`
}

// Err is reconciliation.ErrMismatch when the report did not match.
func (r *Report) Err() error {
	if r.Matched {
		return nil
	}
	return reconDomain.ErrMismatch.WithMessage("loan %s: %d discrepancies", r.LoanID, len(r.Discrepancies))
}

// Reconcile checks the latest hold of a loan and persists any discrepancy
// found. It never writes to the ledger or the hold.
func (s *Service) Reconcile(ctx context.Context, loanID string) (*Report, error) {
	return s.reconcile(ctx, id.New(), loanID)
}

func (s *Service) reconcile(ctx context.Context, runID, loanID string) (*Report, error) {
	repos := s.uow.Repos()
	h, err := repos.Holds.GetLatestByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	events, err := repos.Events.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	txs, err := repos.Transactions.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:      runID,
		LoanID:     loanID,
		HoldID:     h.ID,
		HoldStatus: h.Status,
		HoldAmount: h.Amount,
		Escrow:     escrowTotals(h, events),
		Ledger:     ledgerTotals(h, txs),
		CheckedAt:  s.now(),
	}
	c := &checker{rep: rep, hold: h, at: rep.CheckedAt}

	c.eventOrder(events)
	c.amounts()

	state, err := s.exec.GetStatus(ctx, h.ID)
	if err != nil {
		c.add(reconDomain.DiscrepancyExecutorUnreachable, reconDomain.SeverityMedium, decimal.Zero, decimal.Zero,
			"executor status unavailable: "+err.Error())
	} else {
		rep.ExecutorState = state
		c.executor(state)
	}

	rep.Matched = len(c.found) == 0
	rep.Discrepancies = c.found
	if rep.Discrepancies == nil {
		rep.Discrepancies = []reconDomain.Discrepancy{}
	}

	if !rep.Matched {
		if err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
			return r.Discrepancies.CreateBatch(ctx, c.found)
		}); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{
			"loan_id": loanID, "hold_id": h.ID, "run_id": runID, "discrepancies": len(c.found),
		}).Warn("reconciliation: mismatch")
	}
	return rep, nil
}

// Discrepancies lists everything recorded for a loan across runs.
func (s *Service) Discrepancies(ctx context.Context, loanID string) ([]reconDomain.Discrepancy, error) {
	return s.uow.Repos().Discrepancies.ListByLoan(ctx, loanID)
}

func escrowTotals(h *escrowDomain.Hold, events []escrowDomain.Event) EscrowTotals {
	t := EscrowTotals{Deposited: decimal.Zero, Released: decimal.Zero, Refunded: decimal.Zero}
	for _, e := range events {
		if e.HoldID != h.ID {
			continue
		}
		switch e.Type {
		case escrowDomain.EventDeposit:
			t.Deposited = t.Deposited.Add(e.Amount)
		case escrowDomain.EventReleased:
			t.Released = t.Released.Add(e.Amount)
		case escrowDomain.EventRefunded:
			t.Refunded = t.Refunded.Add(e.Amount)
		}
	}
	return t
}

// ledgerTotals only looks at escrow legs; repayments and fees carry the loan
// id too but are outside custody.
func ledgerTotals(h *escrowDomain.Hold, txs []ledgerDomain.Transaction) LedgerTotals {
	t := LedgerTotals{Reserved: decimal.Zero, Disbursed: decimal.Zero, Refunded: decimal.Zero, Custody: decimal.Zero}
	for _, tx := range txs {
		if tx.TxType == ledgerDomain.TxLoanRepayment || tx.TxType == ledgerDomain.TxFee {
			continue
		}
		if tx.AccountID == h.EscrowAccountID {
			t.Custody = t.Custody.Add(tx.Amount)
			if tx.Direction == ledgerDomain.DirectionIn {
				t.Reserved = t.Reserved.Add(tx.Magnitude())
			}
			continue
		}
		if tx.Direction != ledgerDomain.DirectionIn {
			continue
		}
		switch {
		case tx.TxType == ledgerDomain.TxLoanDisbursement && tx.AccountID == h.BeneficiaryAccountID:
			t.Disbursed = t.Disbursed.Add(tx.Magnitude())
		case tx.TxType == ledgerDomain.TxRefund && tx.AccountID == h.InvestorAccountID:
			t.Refunded = t.Refunded.Add(tx.Magnitude())
		}
	}
	return t
}
