package approval

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	domainApproval "p2p-credit-backend/internal/domain/approval"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	domainLoan "p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/pkg/id"
)

// Settler is the escrow side of an underwriting decision.
type Settler interface {
	Release(ctx context.Context, loanID, authorizedBy string) (*escrowDomain.Hold, error)
	Refund(ctx context.Context, loanID, reason string) (*escrowDomain.Hold, error)
	GetHold(ctx context.Context, loanID string) (*escrowDomain.Hold, error)
	ResolveDispute(ctx context.Context, loanID string, outcome escrowDomain.Resolution, resolvedBy string) (*escrowDomain.Hold, error)
}

// Lifecycle is the loan side.
type Lifecycle interface {
	Activate(ctx context.Context, loanID string) (*domainLoan.Loan, error)
	Cancel(ctx context.Context, loanID string) (*domainLoan.Loan, error)
}

type Usecase struct {
	uow    uow.UnitOfWork
	escrow Settler
	loans  Lifecycle
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, escrow Settler, loans Lifecycle, log logrus.FieldLogger) *Usecase {
	return &Usecase{uow: tx, escrow: escrow, loans: loans, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// Approve records the decision, releases the hold to the borrower and
// activates the loan. A repeated call after a partial failure resumes from
// where the previous one stopped.
func (u *Usecase) Approve(ctx context.Context, in ApproveInput) (*ApprovalDTO, error) {
	if in.LoanID == "" || in.ValidatorEmployeeID == "" {
		return nil, apperror.Validation("loan_id and validator_employee_id are required")
	}
	decidedAt := in.ApprovalDate
	if decidedAt.IsZero() {
		decidedAt = u.now()
	}
	a, l, err := u.record(ctx, in.LoanID, &domainApproval.Approval{
		Decision:            domainApproval.DecisionApproved,
		EvidenceURL:         in.EvidenceURL,
		ValidatorEmployeeID: in.ValidatorEmployeeID,
		DecidedAt:           decidedAt.UTC(),
	}, domainLoan.StatusActive, escrowDomain.HoldReleased)
	if err != nil {
		return nil, err
	}
	if l.Status == domainLoan.StatusActive {
		h, _ := u.escrow.GetHold(ctx, in.LoanID)
		return toDTO(a, l, h), nil
	}

	h, err := u.escrow.Release(ctx, in.LoanID, in.ValidatorEmployeeID)
	if err != nil {
		if h, err = u.settled(ctx, in.LoanID, err, escrowDomain.HoldReleased); err != nil {
			return nil, err
		}
	}
	l, err = u.loans.Activate(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	u.log.WithFields(logrus.Fields{"loan_id": in.LoanID, "approval_id": a.ApprovalID, "hold_id": h.ID}).Info("approval: loan approved")
	return toDTO(a, l, h), nil
}

// Reject records the decision, refunds the investor and cancels the loan.
func (u *Usecase) Reject(ctx context.Context, in RejectInput) (*ApprovalDTO, error) {
	if in.LoanID == "" || in.ValidatorEmployeeID == "" {
		return nil, apperror.Validation("loan_id and validator_employee_id are required")
	}
	a, l, err := u.record(ctx, in.LoanID, &domainApproval.Approval{
		Decision:            domainApproval.DecisionRejected,
		Reason:              in.Reason,
		ValidatorEmployeeID: in.ValidatorEmployeeID,
		DecidedAt:           u.now(),
	}, domainLoan.StatusCancelled, escrowDomain.HoldRefunded, escrowDomain.HoldFailed)
	if err != nil {
		return nil, err
	}
	if l.Status == domainLoan.StatusCancelled {
		h, _ := u.escrow.GetHold(ctx, in.LoanID)
		return toDTO(a, l, h), nil
	}

	reason := in.Reason
	if reason == "" {
		reason = "underwriting rejected"
	}
	h, err := u.escrow.Refund(ctx, in.LoanID, reason)
	if err != nil {
		if h, err = u.settled(ctx, in.LoanID, err, escrowDomain.HoldRefunded, escrowDomain.HoldFailed); err != nil {
			return nil, err
		}
	}
	l, err = u.loans.Cancel(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	u.log.WithFields(logrus.Fields{"loan_id": in.LoanID, "approval_id": a.ApprovalID, "hold_id": h.ID}).Info("approval: loan rejected")
	return toDTO(a, l, h), nil
}

// record stores the decision under the loan lock. When a decision of the same
// kind already exists it is returned instead so the caller can finish the
// remaining steps; a different decision is a conflict. Nothing is stored
// unless the hold can still settle toward the decision (or already has).
func (u *Usecase) record(ctx context.Context, loanID string, a *domainApproval.Approval, done domainLoan.Status, holdDone ...escrowDomain.HoldStatus) (*domainApproval.Approval, *domainLoan.Loan, error) {
	var out *domainApproval.Approval
	var locked *domainLoan.Loan
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domainLoan.Loan) error {
		locked = l
		existing, err := r.Approvals.GetByLoanID(ctx, l.ID)
		switch {
		case err == nil:
			if existing.Decision != a.Decision {
				return domainLoan.ErrAlreadyApproved.WithMessage("loan %s was already %s", l.ID, existing.Decision)
			}
			if l.Status != domainLoan.StatusPending && l.Status != done {
				return domainLoan.ErrInvalidTransition.WithMessage("loan %s is %s", l.ID, l.Status)
			}
			if err := settleable(ctx, r, l.ID, holdDone); err != nil {
				return err
			}
			out = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if l.Status != domainLoan.StatusPending {
			return domainLoan.ErrInvalidTransition.WithMessage("loan %s is %s, only PENDING loans can be decided", l.ID, l.Status)
		}
		if err := settleable(ctx, r, l.ID, holdDone); err != nil {
			return err
		}
		a.ID = id.New()
		a.ApprovalID = id.NewID32()
		a.LoanID = l.ID
		if err := r.Approvals.Create(ctx, a); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domainLoan.ErrAlreadyApproved.WithMessage("loan %s already has a decision", l.ID)
			}
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, locked, nil
}

// settleable checks the latest hold of the loan: settled[0] is the target
// RELEASED or REFUNDED, the rest are terminal states that also count as done.
func settleable(ctx context.Context, r uow.Repos, loanID string, settled []escrowDomain.HoldStatus) error {
	h, err := r.Holds.GetLatestByLoanIDForUpdate(ctx, loanID)
	if err != nil {
		return err
	}
	if h.CanSettle(settled[0]) {
		return nil
	}
	for _, s := range settled {
		if h.Status == s {
			return nil
		}
	}
	return escrowDomain.ErrInvalidEscrowState.WithMessage("hold %s is %s, cannot settle toward %s", h.ID, h.Status, settled[0])
}

// settled turns an InvalidEscrowState from a retried settlement into success
// when the hold already reached one of the wanted states.
func (u *Usecase) settled(ctx context.Context, loanID string, cause error, want ...escrowDomain.HoldStatus) (*escrowDomain.Hold, error) {
	if !errors.Is(cause, escrowDomain.ErrInvalidEscrowState) {
		return nil, cause
	}
	h, err := u.escrow.GetHold(ctx, loanID)
	if err != nil {
		return nil, cause
	}
	for _, s := range want {
		if h.Status == s {
			return h, nil
		}
	}
	return nil, cause
}

// ResolveDispute settles a disputed hold toward the chosen outcome and moves
// the loan with it: RELEASE activates, REFUND cancels. A retry after a failed
// settlement finishes the outcome already recorded on the hold.
func (u *Usecase) ResolveDispute(ctx context.Context, in ResolveInput) (*ResolutionDTO, error) {
	if in.LoanID == "" || in.ResolvedBy == "" {
		return nil, apperror.Validation("loan_id and resolved_by are required")
	}
	if !in.Outcome.Valid() {
		return nil, apperror.Validation("resolution must be RELEASE or REFUND, got %q", in.Outcome)
	}
	target := escrowDomain.HoldRefunded
	if in.Outcome == escrowDomain.ResolutionRelease {
		target = escrowDomain.HoldReleased
	}

	h, err := u.escrow.ResolveDispute(ctx, in.LoanID, in.Outcome, in.ResolvedBy)
	if err != nil {
		if h, err = u.resume(ctx, in, target, err); err != nil {
			return nil, err
		}
	}

	var l *domainLoan.Loan
	if target == escrowDomain.HoldReleased {
		l, err = u.loans.Activate(ctx, in.LoanID)
	} else {
		l, err = u.loans.Cancel(ctx, in.LoanID)
	}
	if err != nil {
		return nil, err
	}
	u.log.WithFields(logrus.Fields{"loan_id": in.LoanID, "hold_id": h.ID, "outcome": in.Outcome}).Info("approval: dispute resolved")
	return &ResolutionDTO{LoanID: in.LoanID, Outcome: in.Outcome, LoanStatus: l.Status, Hold: h}, nil
}

func (u *Usecase) resume(ctx context.Context, in ResolveInput, target escrowDomain.HoldStatus, cause error) (*escrowDomain.Hold, error) {
	if !errors.Is(cause, escrowDomain.ErrInvalidEscrowState) {
		return nil, cause
	}
	h, err := u.escrow.GetHold(ctx, in.LoanID)
	if err != nil {
		return nil, cause
	}
	switch {
	case h.Status == target:
		return h, nil
	case h.Status == escrowDomain.HoldResolved && h.Resolution == in.Outcome:
		if target == escrowDomain.HoldReleased {
			return u.escrow.Release(ctx, in.LoanID, in.ResolvedBy)
		}
		return u.escrow.Refund(ctx, in.LoanID, "dispute resolved by "+in.ResolvedBy)
	}
	return nil, cause
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*domainApproval.Approval, error) {
	a, err := u.uow.Repos().Approvals.GetByLoanID(ctx, loanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("loan %s has no underwriting decision", loanID)
	}
	return a, err
}

// GetByApprovalID looks a decision up by its public 32-hex id.
func (u *Usecase) GetByApprovalID(ctx context.Context, approvalID string) (*domainApproval.Approval, error) {
	a, err := u.uow.Repos().Approvals.GetByApprovalID(ctx, approvalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("approval %s", approvalID)
	}
	return a, err
}
