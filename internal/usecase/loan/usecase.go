package loan

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	domain "p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/repayment"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/internal/schedule"
	"p2p-credit-backend/internal/usecase/matching"
	"p2p-credit-backend/pkg/id"
)

type Matcher interface {
	Match(ctx context.Context, req matching.Request) (*matching.Result, error)
}

type Usecase struct {
	uow              uow.UnitOfWork
	matcher          Matcher
	penalty          schedule.PenaltyPolicy
	defaultAfterDays int
	log              logrus.FieldLogger
	now              func() time.Time
}

func NewUsecase(u uow.UnitOfWork, m Matcher, penalty schedule.PenaltyPolicy, defaultAfterDays int, log logrus.FieldLogger) *Usecase {
	return &Usecase{
		uow: u, matcher: m, penalty: penalty, defaultAfterDays: defaultAfterDays, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

// RequestLoan matches the request against the offer book. The loan row is
// only written once a hold exists, so a failed match leaves nothing behind.
func (u *Usecase) RequestLoan(ctx context.Context, in RequestLoanInput) (*LoanDTO, error) {
	if in.BorrowerID == "" || in.BorrowerAccountID == "" {
		return nil, apperror.Validation("borrower_id and borrower_account_id are required")
	}
	if in.Frequency != "" && in.Frequency != domain.FrequencyMonthly && in.Frequency != domain.FrequencyWeekly {
		return nil, apperror.Validation("invalid frequency %q", in.Frequency)
	}
	acc, err := u.uow.Repos().Accounts.GetByID(ctx, in.BorrowerAccountID)
	if err != nil {
		return nil, err
	}
	if acc.Kind != account.KindBorrower || acc.OwnerID != in.BorrowerID {
		return nil, apperror.Validation("account %s is not a borrower account of %s", acc.ID, in.BorrowerID)
	}
	if acc.Status != account.StatusActive {
		return nil, account.ErrNotActive.WithMessage("account %s is %s", acc.ID, acc.Status)
	}

	res, err := u.matcher.Match(ctx, matching.Request{
		BorrowerID:        in.BorrowerID,
		BorrowerAccountID: in.BorrowerAccountID,
		Amount:            in.Amount,
		RiskProfile:       in.RiskProfile,
		TermDays:          in.TermDays,
		CreditScore:       in.CreditScore,
		Frequency:         in.Frequency,
	})
	if err != nil {
		return nil, err
	}
	return toDTO(res.Loan, res.Hold, nil, u.now()), nil
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	repos := u.uow.Repos()
	l, err := repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	h, err := repos.Holds.GetLatestByLoanID(ctx, loanID)
	if err != nil && !errors.Is(err, escrowDomain.ErrHoldNotFound) {
		return nil, err
	}
	sched, err := u.Schedule(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return toDTO(l, h, sched, u.now()), nil
}

// Schedule lists the installments with penalties computed as of now; the
// penalty is only stored once an installment is settled.
func (u *Usecase) Schedule(ctx context.Context, loanID string) ([]repayment.Repayment, error) {
	rs, err := u.uow.Repos().Repayments.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	for i := range rs {
		u.penalty.Apply(&rs[i], now)
	}
	return rs, nil
}

// Activate generates the repayment schedule from the disbursement date and
// moves the loan PENDING -> ACTIVE. Activating an already active loan is a
// no-op so an interrupted approval can be resumed.
func (u *Usecase) Activate(ctx context.Context, loanID string) (*domain.Loan, error) {
	var out *domain.Loan
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
		if l.Status == domain.StatusActive {
			out = l
			return nil
		}
		now := u.now()
		if err := l.Transition(domain.StatusActive, now); err != nil {
			return err
		}
		period := schedule.Period(l.Frequency)
		plan, err := schedule.Generate(l.Principal, schedule.PeriodicRate(l.InterestRate, period), l.Installments, now, period)
		if err != nil {
			return apperror.Validation("loan %s: %v", l.ID, err)
		}
		rows := make([]repayment.Repayment, 0, len(plan))
		for _, it := range plan {
			rows = append(rows, repayment.Repayment{
				ID:                 id.New(),
				LoanID:             l.ID,
				InstallmentNumber:  it.Number,
				PrincipalComponent: it.Principal,
				InterestComponent:  it.Interest,
				DueDate:            it.DueDate,
				Status:             repayment.StatusPending,
			})
		}
		if err := r.Repayments.CreateBatch(ctx, rows); err != nil {
			return err
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.WithFields(logrus.Fields{"loan_id": out.ID, "installments": out.Installments}).Info("loan: activated")
	return out, nil
}

// Cancel closes a loan that never disbursed. Escrow is settled by the caller.
func (u *Usecase) Cancel(ctx context.Context, loanID string) (*domain.Loan, error) {
	var out *domain.Loan
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
		if l.Status == domain.StatusCancelled {
			out = l
			return nil
		}
		if err := l.Transition(domain.StatusCancelled, u.now()); err != nil {
			return err
		}
		out = l
		return r.Loans.Save(ctx, l)
	})
	return out, err
}
