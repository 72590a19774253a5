package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/pkg/id"
)

// Service drives holds through PENDING -> {RELEASED, REFUNDED} (optionally
// via DISPUTE -> RESOLVED). Ledger legs are only written after the executor
// confirmed the matching custody operation.
type Service struct {
	uow     uow.UnitOfWork
	exec    escrowDomain.Executor
	log     logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

func NewService(u uow.UnitOfWork, exec escrowDomain.Executor, log logrus.FieldLogger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{uow: u, exec: exec, log: log, timeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// call runs one executor operation under the configured timeout and maps its
// outcome: already-applied counts as success, a rejection is final, anything
// else is transient and retryable with the same key.
func (s *Service) call(ctx context.Context, op string, h *escrowDomain.Hold, fn func(ctx context.Context) (string, error)) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := fn(cctx)
	entry := s.log.WithFields(logrus.Fields{"op": op, "hold_id": h.ID, "loan_id": h.LoanID})
	switch {
	case err == nil:
		return ref, nil
	case errors.Is(err, escrowDomain.ErrAlreadyApplied):
		entry.Info("escrow: executor reports already applied")
		return ref, nil
	case errors.Is(err, escrowDomain.ErrRejected):
		entry.WithError(err).Warn("escrow: executor rejected")
		return "", escrowDomain.ErrExecutorRejected.Wrap(err)
	default:
		entry.WithError(err).Warn("escrow: executor call failed")
		return "", apperror.External(err, "escrow %s for hold %s", op, h.ID)
	}
}

func (s *Service) appendEvent(ctx context.Context, r uow.Repos, h *escrowDomain.Hold, t escrowDomain.EventType, txRef string) (*escrowDomain.Event, error) {
	seq, err := r.Events.NextSequence(ctx, h.LoanID)
	if err != nil {
		return nil, err
	}
	ev := escrowDomain.NewEvent(id.New(), h, t, seq, txRef, s.now())
	if err := r.Events.Append(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// closeCustody closes the per-hold escrow account once it is drained.
func closeCustody(ctx context.Context, r uow.Repos, accountID string) error {
	acc, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Status == account.StatusClosed {
		return nil
	}
	if err := acc.Transition(account.StatusClosed); err != nil {
		return err
	}
	return r.Accounts.Save(ctx, acc)
}

// GetHold returns the latest hold of a loan.
func (s *Service) GetHold(ctx context.Context, loanID string) (*escrowDomain.Hold, error) {
	return s.uow.Repos().Holds.GetLatestByLoanID(ctx, loanID)
}

func (s *Service) ListEvents(ctx context.Context, loanID string) ([]escrowDomain.Event, error) {
	return s.uow.Repos().Events.ListByLoan(ctx, loanID)
}
