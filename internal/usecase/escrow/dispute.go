package escrow

import (
	"context"

	"github.com/sirupsen/logrus"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
)

// RaiseDispute parks a PENDING hold until someone resolves it.
func (s *Service) RaiseDispute(ctx context.Context, loanID, reason string) (*escrowDomain.Hold, error) {
	if reason == "" {
		return nil, apperror.Validation("dispute reason is required")
	}
	current, err := s.uow.Repos().Holds.GetLatestByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if current.Status != escrowDomain.HoldPending {
		return nil, escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s is %s, cannot dispute", current.ID, current.Status)
	}
	if _, err := s.ensureDeposited(ctx, current); err != nil {
		return nil, err
	}

	var out *escrowDomain.Hold
	err = s.uow.WithinTx(ctx, func(r uow.Repos) error {
		h, err := r.Holds.GetLatestByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := h.Transition(escrowDomain.HoldDispute, s.now()); err != nil {
			return err
		}
		h.Reason = reason
		if err := r.Holds.Save(ctx, h); err != nil {
			return err
		}
		if _, err := s.appendEvent(ctx, r, h, escrowDomain.EventDispute, ""); err != nil {
			return err
		}
		out = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"hold_id": out.ID, "loan_id": loanID}).Warn("escrow: dispute raised")
	return out, nil
}

// ResolveDispute records the outcome and then settles toward it. If the
// settlement step fails the hold stays RESOLVED and Release/Refund can be
// retried; only the chosen direction is accepted. The loan is moved by the
// caller (approval.Usecase.ResolveDispute).
func (s *Service) ResolveDispute(ctx context.Context, loanID string, outcome escrowDomain.Resolution, resolvedBy string) (*escrowDomain.Hold, error) {
	if !outcome.Valid() {
		return nil, apperror.Validation("resolution must be RELEASE or REFUND, got %q", outcome)
	}
	if resolvedBy == "" {
		return nil, apperror.Validation("resolved_by is required")
	}

	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		h, err := r.Holds.GetLatestByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := h.Transition(escrowDomain.HoldResolved, s.now()); err != nil {
			return err
		}
		h.Resolution = outcome
		h.AuthorizedBy = resolvedBy
		if err := r.Holds.Save(ctx, h); err != nil {
			return err
		}
		_, err = s.appendEvent(ctx, r, h, escrowDomain.EventResolved, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	if outcome == escrowDomain.ResolutionRelease {
		return s.Release(ctx, loanID, resolvedBy)
	}
	return s.Refund(ctx, loanID, "dispute resolved by "+resolvedBy)
}
