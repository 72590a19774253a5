package escrow

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/usecase/ledger"
	"p2p-credit-backend/pkg/id"
)

// Release pays the held amount out to the beneficiary (borrower).
func (s *Service) Release(ctx context.Context, loanID, authorizedBy string) (*escrowDomain.Hold, error) {
	return s.settle(ctx, loanID, escrowDomain.HoldReleased, authorizedBy, "")
}

// Refund returns the held amount to the investor.
func (s *Service) Refund(ctx context.Context, loanID, reason string) (*escrowDomain.Hold, error) {
	return s.settle(ctx, loanID, escrowDomain.HoldRefunded, "", reason)
}

type settlement struct {
	event   escrowDomain.EventType
	txType  ledgerDomain.TxType
	extern  escrowDomain.ExecutorState
	op      string
	dest    func(h *escrowDomain.Hold) string
	execute func(exec escrowDomain.Executor) func(ctx context.Context, holdID, key string) (string, error)
}

var settlements = map[escrowDomain.HoldStatus]settlement{
	escrowDomain.HoldReleased: {
		event:  escrowDomain.EventReleased,
		txType: ledgerDomain.TxLoanDisbursement,
		extern: escrowDomain.ExecutorReleased,
		op:     "release",
		dest:   func(h *escrowDomain.Hold) string { return h.BeneficiaryAccountID },
		execute: func(exec escrowDomain.Executor) func(context.Context, string, string) (string, error) {
			return exec.Release
		},
	},
	escrowDomain.HoldRefunded: {
		event:  escrowDomain.EventRefunded,
		txType: ledgerDomain.TxRefund,
		extern: escrowDomain.ExecutorRefunded,
		op:     "refund",
		dest:   func(h *escrowDomain.Hold) string { return h.InvestorAccountID },
		execute: func(exec escrowDomain.Executor) func(context.Context, string, string) (string, error) {
			return exec.Refund
		},
	},
}

// settle moves a hold to RELEASED or REFUNDED. The hold row stays locked
// for the whole step, so of two concurrent settle calls exactly one wins and
// the other sees a terminal hold and gets ErrInvalidEscrowState. The executor
// is called before any ledger leg; if it fails nothing is written.
func (s *Service) settle(ctx context.Context, loanID string, target escrowDomain.HoldStatus, authorizedBy, reason string) (*escrowDomain.Hold, error) {
	st := settlements[target]

	current, err := s.uow.Repos().Holds.GetLatestByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !current.CanSettle(target) {
		return nil, escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s is %s, cannot %s", current.ID, current.Status, st.op)
	}
	if _, err := s.ensureDeposited(ctx, current); err != nil {
		if errors.Is(err, escrowDomain.ErrExecutorRejected) {
			return nil, escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s failed: deposit rejected, funds already returned", current.ID)
		}
		return nil, err
	}

	var out *escrowDomain.Hold
	err = s.uow.WithinTx(ctx, func(r uow.Repos) error {
		h, err := r.Holds.GetLatestByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !h.CanSettle(target) {
			return escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s is %s, cannot %s", h.ID, h.Status, st.op)
		}

		// both legs must be usable before custody moves on the executor side
		for _, accID := range []string{h.EscrowAccountID, st.dest(h)} {
			acc, err := r.Accounts.GetByIDForUpdate(ctx, accID)
			if err != nil {
				return err
			}
			if acc.Status != account.StatusActive {
				return account.ErrNotActive.WithMessage("account %s is %s", acc.ID, acc.Status)
			}
		}

		seq, err := r.Events.NextSequence(ctx, h.LoanID)
		if err != nil {
			return err
		}
		key := escrowDomain.EventHash(h.LoanID, st.event, h.Amount, seq)
		ref, err := s.call(ctx, st.op, h, func(cctx context.Context) (string, error) {
			return st.execute(s.exec)(cctx, h.ID, key)
		})
		if err != nil {
			return err
		}

		now := s.now()
		if _, _, err := ledger.ApplyTransfer(ctx, r, ledger.Transfer{
			From: h.EscrowAccountID, To: st.dest(h), Amount: h.Amount,
			TxType: st.txType, LoanID: h.LoanID, Reference: "hold:" + h.ID,
		}, now); err != nil {
			return err
		}

		if err := h.Transition(target, now); err != nil {
			return err
		}
		h.ExternalStatus = st.extern
		h.SettlementTxRef = ref
		if authorizedBy != "" {
			h.AuthorizedBy = authorizedBy
		}
		if reason != "" {
			h.Reason = reason
		}
		if err := r.Holds.Save(ctx, h); err != nil {
			return err
		}

		ev := escrowDomain.NewEvent(id.New(), h, st.event, seq, ref, now)
		if err := r.Events.Append(ctx, &ev); err != nil {
			return err
		}
		out = h
		return closeCustody(ctx, r, h.EscrowAccountID)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"hold_id": out.ID, "loan_id": out.LoanID, "status": out.Status, "tx_ref": out.SettlementTxRef,
	}).Info("escrow: hold settled")
	return out, nil
}
