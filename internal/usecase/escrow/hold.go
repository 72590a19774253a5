package escrow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/internal/usecase/ledger"
	"p2p-credit-backend/pkg/id"
)

type CreateHoldInput struct {
	LoanID               string
	InvestorAccountID    string
	BeneficiaryAccountID string
	Amount               decimal.Decimal
}

func (in CreateHoldInput) validate() error {
	if in.LoanID == "" || in.InvestorAccountID == "" || in.BeneficiaryAccountID == "" {
		return apperror.Validation("loan, investor account and beneficiary account are required")
	}
	if !in.Amount.IsPositive() {
		return apperror.Validation("hold amount must be positive, got %s", in.Amount)
	}
	return nil
}

// CreateHold opens a PENDING hold and reserves the amount by moving it from
// the investor account into a custody account owned by the hold, then asks
// the executor to deposit.
//
// A transient executor failure returns the hold together with a retryable
// error: the hold stays PENDING and the deposit is re-sent with the same key
// later. A rejected deposit returns the reserved funds and fails the hold.
func (s *Service) CreateHold(ctx context.Context, in CreateHoldInput) (*escrowDomain.Hold, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var hold *escrowDomain.Hold
	var depositSeq int
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		active, err := r.Holds.HasActive(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if active {
			return escrowDomain.ErrEscrowAlreadyExists.WithMessage("loan %s already has an active hold", in.LoanID)
		}

		now := s.now()
		holdID := id.New()
		custody := &account.Account{
			ID:      id.New(),
			OwnerID: "hold:" + holdID,
			Kind:    account.KindEscrow,
			Balance: decimal.Zero,
			Status:  account.StatusActive,
		}
		if err := r.Accounts.Create(ctx, custody); err != nil {
			return err
		}

		loanID := in.LoanID
		h := &escrowDomain.Hold{
			ID:                   holdID,
			LoanID:               in.LoanID,
			ActiveLoanID:         &loanID,
			InvestorAccountID:    in.InvestorAccountID,
			EscrowAccountID:      custody.ID,
			BeneficiaryAccountID: in.BeneficiaryAccountID,
			Amount:               in.Amount,
			Status:               escrowDomain.HoldPending,
			ExternalStatus:       escrowDomain.ExecutorRequested,
			CreatedAt:            now,
		}
		if err := r.Holds.Create(ctx, h); err != nil {
			return err
		}

		if _, _, err := ledger.ApplyTransfer(ctx, r, ledger.Transfer{
			From:      in.InvestorAccountID,
			To:        custody.ID,
			Amount:    in.Amount,
			TxType:    ledgerDomain.TxTransfer,
			LoanID:    in.LoanID,
			Reference: "hold:" + holdID,
		}, now); err != nil {
			return err
		}

		created, err := s.appendEvent(ctx, r, h, escrowDomain.EventCreated, "")
		if err != nil {
			return err
		}
		hold, depositSeq = h, created.Sequence+1
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"hold_id": hold.ID, "loan_id": hold.LoanID, "amount": hold.Amount.StringFixed(2),
	}).Info("escrow: hold created")

	return s.deposit(ctx, hold, depositSeq)
}

// depositSequence is the sequence reserved for the DEPOSIT event: right after
// the hold's CREATED event. Nothing else is appended for the loan until the
// deposit is recorded, so retries always derive the same key.
func depositSequence(ctx context.Context, r uow.Repos, h *escrowDomain.Hold) (int, error) {
	events, err := r.Events.ListByLoan(ctx, h.LoanID)
	if err != nil {
		return 0, err
	}
	for _, e := range events {
		if e.HoldID == h.ID && e.Type == escrowDomain.EventCreated {
			return e.Sequence + 1, nil
		}
	}
	return 0, escrowDomain.ErrOutOfOrderEvent.WithMessage("hold %s has no CREATED event", h.ID)
}

func (s *Service) deposit(ctx context.Context, h *escrowDomain.Hold, seq int) (*escrowDomain.Hold, error) {
	key := escrowDomain.EventHash(h.LoanID, escrowDomain.EventDeposit, h.Amount, seq)
	ref, err := s.call(ctx, "deposit", h, func(cctx context.Context) (string, error) {
		return s.exec.Deposit(cctx, h.ID, h.Amount, key)
	})
	if errors.Is(err, escrowDomain.ErrExecutorRejected) {
		if ferr := s.failHold(ctx, h.ID); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	if err != nil {
		return h, err
	}
	return s.recordDeposit(ctx, h.ID, seq, ref)
}

// recordDeposit appends the DEPOSIT event once; replays are no-ops.
func (s *Service) recordDeposit(ctx context.Context, holdID string, seq int, ref string) (*escrowDomain.Hold, error) {
	var out *escrowDomain.Hold
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		h, err := r.Holds.GetByIDForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		out = h
		if h.Status.Terminal() || depositConfirmed(h) {
			return nil
		}
		ev := escrowDomain.NewEvent(id.New(), h, escrowDomain.EventDeposit, seq, ref, s.now())
		if err := r.Events.Append(ctx, &ev); err != nil && !errors.Is(err, escrowDomain.ErrDuplicateEvent) {
			return err
		}
		h.ExternalStatus = escrowDomain.ExecutorDeposited
		h.DepositTxRef = ref
		return r.Holds.Save(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// failHold is the compensation for a rejected deposit: custody goes back to
// the investor and the hold ends FAILED.
func (s *Service) failHold(ctx context.Context, holdID string) error {
	return s.uow.WithinTx(ctx, func(r uow.Repos) error {
		h, err := r.Holds.GetByIDForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		if h.Status.Terminal() {
			return nil
		}
		now := s.now()
		if _, _, err := ledger.ApplyTransfer(ctx, r, ledger.Transfer{
			From: h.EscrowAccountID, To: h.InvestorAccountID, Amount: h.Amount,
			TxType: ledgerDomain.TxRefund, LoanID: h.LoanID, Reference: "hold:" + h.ID,
		}, now); err != nil {
			return err
		}
		if err := h.Transition(escrowDomain.HoldFailed, now); err != nil {
			return err
		}
		h.Reason = "deposit rejected by executor"
		if err := r.Holds.Save(ctx, h); err != nil {
			return err
		}
		if _, err := s.appendEvent(ctx, r, h, escrowDomain.EventRefunded, ""); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"hold_id": h.ID, "loan_id": h.LoanID}).Warn("escrow: hold failed, funds returned")
		return closeCustody(ctx, r, h.EscrowAccountID)
	})
}

// depositConfirmed is true once the executor acknowledged custody; later
// executor states imply it.
func depositConfirmed(h *escrowDomain.Hold) bool {
	switch h.ExternalStatus {
	case "", escrowDomain.ExecutorNone, escrowDomain.ExecutorRequested:
		return false
	}
	return true
}

// ensureDeposited re-sends an unconfirmed deposit with its original key.
func (s *Service) ensureDeposited(ctx context.Context, h *escrowDomain.Hold) (*escrowDomain.Hold, error) {
	if h.Status.Terminal() || depositConfirmed(h) {
		return h, nil
	}
	seq, err := depositSequence(ctx, s.uow.Repos(), h)
	if err != nil {
		return nil, err
	}
	return s.deposit(ctx, h, seq)
}

// ConfirmDeposit retries the deposit of the loan's latest hold.
func (s *Service) ConfirmDeposit(ctx context.Context, loanID string) (*escrowDomain.Hold, error) {
	h, err := s.uow.Repos().Holds.GetLatestByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return s.ensureDeposited(ctx, h)
}

// RetryPendingDeposits walks PENDING holds whose deposit was never confirmed.
// Returns how many were confirmed in this pass.
func (s *Service) RetryPendingDeposits(ctx context.Context) (int, error) {
	holds, err := s.uow.Repos().Holds.ListByStatus(ctx, escrowDomain.HoldPending)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for i := range holds {
		h := &holds[i]
		if depositConfirmed(h) {
			continue
		}
		got, err := s.ensureDeposited(ctx, h)
		if err != nil {
			s.log.WithError(err).WithField("hold_id", h.ID).Warn("escrow: deposit retry failed")
			continue
		}
		if depositConfirmed(got) {
			confirmed++
		}
	}
	return confirmed, nil
}
