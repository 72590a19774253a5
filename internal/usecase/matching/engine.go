package matching

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/internal/schedule"
	"p2p-credit-backend/internal/usecase/escrow"
	"p2p-credit-backend/pkg/id"
)

// candidateBatch bounds how many offers one request walks through.
const candidateBatch = 20

type HoldCreator interface {
	CreateHold(ctx context.Context, in escrow.CreateHoldInput) (*escrowDomain.Hold, error)
}

type Engine struct {
	uow   uow.UnitOfWork
	holds HoldCreator
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewEngine(u uow.UnitOfWork, holds HoldCreator, log logrus.FieldLogger) *Engine {
	return &Engine{uow: u, holds: holds, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Request is a loan request as seen by the offer book.
type Request struct {
	BorrowerID        string
	BorrowerAccountID string
	Amount            decimal.Decimal
	RiskProfile       offer.RiskProfile
	TermDays          int
	CreditScore       int
	Frequency         loan.Frequency
}

type Result struct {
	Offer *offer.Offer
	Loan  *loan.Loan
	Hold  *escrowDomain.Hold
}

// skippable failures move on to the next candidate offer.
func skippable(err error) bool {
	return errors.Is(err, ledgerDomain.ErrInsufficientFunds) ||
		errors.Is(err, account.ErrNotActive) ||
		errors.Is(err, account.ErrNotFound) ||
		errors.Is(err, escrowDomain.ErrExecutorRejected)
}

// Match selects the cheapest eligible offer (rate ASC, then FIFO), claims it
// with a compare-and-swap on status+version and opens a hold for the
// requested amount. A loser of the CAS race simply tries the next offer, so
// one offer is never matched twice. If the hold cannot be created the offer
// goes back to OPEN and no loan is written.
func (e *Engine) Match(ctx context.Context, req Request) (*Result, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.Validation("amount must be positive")
	}
	if !req.RiskProfile.Valid() {
		return nil, apperror.Validation("invalid risk_profile %q", req.RiskProfile)
	}
	if req.TermDays < 0 {
		return nil, apperror.Validation("term_days cannot be negative")
	}
	if req.Frequency == "" {
		req.Frequency = loan.FrequencyMonthly
	}
	if req.TermDays > 0 {
		n := schedule.PeriodsFor(req.TermDays, schedule.Period(req.Frequency))
		if err := schedule.Check(req.Amount, decimal.Zero, n); err != nil {
			return nil, apperror.Validation("amount %s cannot be split into %d installments", req.Amount.StringFixed(2), n)
		}
	}

	crit := offer.Criteria{
		Amount:      req.Amount,
		RiskProfile: req.RiskProfile,
		TermDays:    req.TermDays,
		CreditScore: req.CreditScore,
		AsOf:        e.now(),
	}
	candidates, err := e.uow.Repos().Offers.FindCandidates(ctx, crit, candidateBatch)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		o := candidates[i]
		if !o.Eligible(crit) {
			continue
		}
		if err := payable(req, &o); err != nil {
			e.log.WithError(err).WithField("offer_id", o.ID).Info("matching: schedule not payable at offer terms")
			continue
		}
		res, err := e.tryOffer(ctx, &o, req)
		switch {
		case err == nil && res == nil:
			continue // lost the race
		case err == nil:
			return res, nil
		case skippable(err):
			e.log.WithError(err).WithField("offer_id", o.ID).Info("matching: candidate skipped")
			continue
		default:
			return nil, err
		}
	}
	return nil, offer.ErrNoMatchFound.WithMessage("no %s offer covers %s for %d days", req.RiskProfile, req.Amount.StringFixed(2), req.TermDays)
}

// payable reports whether the requested amount amortizes into payable
// installments at the offer's rate and term.
func payable(req Request, o *offer.Offer) error {
	period := schedule.Period(req.Frequency)
	return schedule.Check(req.Amount, schedule.PeriodicRate(o.Rate, period), schedule.PeriodsFor(o.TermDays, period))
}

// tryOffer returns (nil, nil) when another request claimed the offer first.
func (e *Engine) tryOffer(ctx context.Context, o *offer.Offer, req Request) (*Result, error) {
	loanID := id.New()
	repos := e.uow.Repos()

	won, err := repos.Offers.CompareAndSwapStatus(ctx, o.ID, o.Version, offer.StatusOpen, offer.StatusMatched, &loanID)
	if err != nil || !won {
		return nil, err
	}
	claimed := o.Version + 1

	hold, herr := e.holds.CreateHold(ctx, escrow.CreateHoldInput{
		LoanID:               loanID,
		InvestorAccountID:    o.AccountID,
		BeneficiaryAccountID: req.BorrowerAccountID,
		Amount:               req.Amount,
	})
	if hold == nil {
		// no funds reserved: undo the claim
		if _, cerr := repos.Offers.CompareAndSwapStatus(ctx, o.ID, claimed, offer.StatusMatched, offer.StatusOpen, nil); cerr != nil {
			e.log.WithError(cerr).WithField("offer_id", o.ID).Error("matching: could not reopen offer")
		}
		return nil, herr
	}
	if herr != nil {
		// funds are reserved, only the executor deposit is outstanding; it is
		// retried with the same key by the deposit sweeper
		e.log.WithError(herr).WithFields(logrus.Fields{"loan_id": loanID, "hold_id": hold.ID}).Warn("matching: deposit pending")
	}

	now := e.now()
	offerID := o.ID
	l := &loan.Loan{
		ID:                loanID,
		OfferID:           &offerID,
		BorrowerID:        req.BorrowerID,
		BorrowerAccountID: req.BorrowerAccountID,
		LenderID:          o.InvestorID,
		LenderAccountID:   o.AccountID,
		Principal:         req.Amount,
		InterestRate:      o.Rate,
		TermDays:          o.TermDays,
		Installments:      schedule.PeriodsFor(o.TermDays, schedule.Period(req.Frequency)),
		Frequency:         req.Frequency,
		RiskProfile:       o.RiskProfile,
		CreditScore:       req.CreditScore,
		Status:            loan.StatusDraft,
		StatusUpdatedAt:   now,
	}
	if err := l.Transition(loan.StatusPending, now); err != nil {
		return nil, err
	}
	if err := repos.Loans.Create(ctx, l); err != nil {
		return nil, err
	}

	o.Status, o.Version, o.MatchedLoanID = offer.StatusMatched, claimed, &loanID
	e.log.WithFields(logrus.Fields{
		"offer_id": o.ID, "loan_id": l.ID, "hold_id": hold.ID, "rate": o.Rate.String(),
	}).Info("matching: offer matched")
	return &Result{Offer: o, Loan: l, Hold: hold}, nil
}
