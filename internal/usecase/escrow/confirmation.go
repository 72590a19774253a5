package escrow

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
)

// Confirmation is an asynchronous executor notification (webhook).
type Confirmation struct {
	EventID string
	HoldID  string
	Status  escrowDomain.ExecutorState
	TxRef   string
	// EventHash, when set, is the idempotency key of the transition being
	// confirmed and must belong to HoldID.
	EventHash string
}

// HandleConfirmation applies an executor notification idempotently.
//
// DEPOSITED confirms an outstanding deposit (same as the synchronous answer).
// RELEASED/REFUNDED for a hold that is already in that state is a duplicate.
// For a hold still open only ExternalStatus is updated: settlement is driven
// by underwriting, and the divergence shows up in reconciliation.
func (s *Service) HandleConfirmation(ctx context.Context, c Confirmation) (*escrowDomain.Hold, error) {
	c.Status = escrowDomain.ExecutorState(strings.ToUpper(string(c.Status)))
	if c.EventID == "" || c.HoldID == "" {
		return nil, apperror.Validation("event_id and hold_id are required")
	}
	entry := s.log.WithFields(logrus.Fields{"event_id": c.EventID, "hold_id": c.HoldID, "status": c.Status})

	h, err := s.uow.Repos().Holds.GetByID(ctx, c.HoldID)
	if err != nil {
		return nil, err
	}
	if c.EventHash != "" {
		ev, err := s.uow.Repos().Events.GetByHash(ctx, c.EventHash)
		if err != nil {
			return nil, err
		}
		if ev.HoldID != h.ID {
			return nil, apperror.Validation("event %s does not belong to hold %s", c.EventHash, h.ID)
		}
	}

	switch c.Status {
	case escrowDomain.ExecutorDeposited:
		if h.Status.Terminal() || depositConfirmed(h) {
			entry.Debug("escrow: duplicate deposit confirmation")
			return h, nil
		}
		seq, err := depositSequence(ctx, s.uow.Repos(), h)
		if err != nil {
			return nil, err
		}
		entry.Info("escrow: deposit confirmed by webhook")
		return s.recordDeposit(ctx, h.ID, seq, c.TxRef)

	case escrowDomain.ExecutorReleased, escrowDomain.ExecutorRefunded:
		var out *escrowDomain.Hold
		err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
			h, err := r.Holds.GetByIDForUpdate(ctx, c.HoldID)
			if err != nil {
				return err
			}
			out = h
			if h.Status.Terminal() {
				if !matchesTerminal(h.Status, c.Status) {
					return escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s is %s, executor reports %s", h.ID, h.Status, c.Status)
				}
				return nil
			}
			if !depositConfirmed(h) {
				return escrowDomain.ErrOutOfOrderEvent.WithMessage("hold %s: %s before deposit confirmation", h.ID, c.Status)
			}
			h.ExternalStatus = c.Status
			return r.Holds.Save(ctx, h)
		})
		if err != nil {
			return nil, err
		}
		entry.Info("escrow: settlement notification applied")
		return out, nil

	default:
		return nil, apperror.Validation("unsupported executor status %q", c.Status)
	}
}

func matchesTerminal(status escrowDomain.HoldStatus, reported escrowDomain.ExecutorState) bool {
	return (status == escrowDomain.HoldReleased && reported == escrowDomain.ExecutorReleased) ||
		(status == escrowDomain.HoldRefunded && reported == escrowDomain.ExecutorRefunded) ||
		(status == escrowDomain.HoldFailed && reported == escrowDomain.ExecutorRefunded)
}
