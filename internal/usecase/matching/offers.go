package matching

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/internal/schedule"
	"p2p-credit-backend/pkg/id"
)

type CreateOfferInput struct {
	InvestorAccountID string
	Amount            decimal.Decimal
	Rate              decimal.Decimal
	TermDays          int
	RiskProfile       offer.RiskProfile
	MinCreditScore    int
	ExpiresAt         *time.Time
}

func (in CreateOfferInput) validate(now time.Time) error {
	switch {
	case in.InvestorAccountID == "":
		return apperror.Validation("account_id is required")
	case !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)):
		return apperror.Validation("amount must be positive with at most 2 decimals")
	case in.Rate.IsNegative() || in.Rate.GreaterThan(decimal.NewFromInt(1)):
		return apperror.Validation("rate must be within [0, 1]")
	case in.TermDays <= 0:
		return apperror.Validation("term_days must be positive")
	case !in.RiskProfile.Valid():
		return apperror.Validation("invalid risk_profile %q", in.RiskProfile)
	case in.MinCreditScore < 0:
		return apperror.Validation("min_credit_score cannot be negative")
	case in.ExpiresAt != nil && !in.ExpiresAt.After(now):
		return apperror.Validation("expires_at must be in the future")
	}
	n := schedule.PeriodsFor(in.TermDays, schedule.Monthly)
	if err := schedule.Check(in.Amount, schedule.PeriodicRate(in.Rate, schedule.Monthly), n); err != nil {
		return apperror.Validation("amount %s cannot be split into %d monthly installments", in.Amount.StringFixed(2), n)
	}
	return nil
}

// CreateOffer posts an investor offer. The investor must currently hold the
// offered amount; funds are only reserved once the offer is matched.
func (e *Engine) CreateOffer(ctx context.Context, in CreateOfferInput) (*offer.Offer, error) {
	now := e.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	repos := e.uow.Repos()
	acc, err := repos.Accounts.GetByID(ctx, in.InvestorAccountID)
	if err != nil {
		return nil, err
	}
	if acc.Status != account.StatusActive {
		return nil, account.ErrNotActive.WithMessage("account %s is %s", acc.ID, acc.Status)
	}
	if acc.Kind != account.KindInvestor {
		return nil, apperror.Validation("account %s is not an investor account", acc.ID)
	}
	if acc.Balance.LessThan(in.Amount) {
		return nil, ledgerDomain.ErrInsufficientFunds.WithMessage("offer %s exceeds balance %s", in.Amount.StringFixed(2), acc.Balance.StringFixed(2))
	}

	o := &offer.Offer{
		ID:             id.New(),
		InvestorID:     acc.OwnerID,
		AccountID:      acc.ID,
		Amount:         in.Amount,
		Rate:           in.Rate,
		TermDays:       in.TermDays,
		RiskProfile:    in.RiskProfile,
		MinCreditScore: in.MinCreditScore,
		Status:         offer.StatusOpen,
		Version:        1,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      now,
	}
	if err := repos.Offers.Create(ctx, o); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"offer_id": o.ID, "investor_id": o.InvestorID, "risk": o.RiskProfile}).Info("matching: offer created")
	return o, nil
}

func (e *Engine) CancelOffer(ctx context.Context, offerID string) (*offer.Offer, error) {
	return e.close(ctx, offerID, offer.StatusCancelled)
}

func (e *Engine) close(ctx context.Context, offerID string, to offer.Status) (*offer.Offer, error) {
	repos := e.uow.Repos()
	o, err := repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Status != offer.StatusOpen {
		return nil, offer.ErrNotOpen.WithMessage("offer %s is %s", o.ID, o.Status)
	}
	won, err := repos.Offers.CompareAndSwapStatus(ctx, o.ID, o.Version, offer.StatusOpen, to, nil)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, offer.ErrNotOpen.WithMessage("offer %s changed concurrently", o.ID)
	}
	o.Status, o.Version = to, o.Version+1
	return o, nil
}

// ExpireOffers closes OPEN offers whose expires_at has passed.
func (e *Engine) ExpireOffers(ctx context.Context, asOf time.Time) (int, error) {
	expired, err := e.uow.Repos().Offers.ListExpired(ctx, asOf)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range expired {
		if _, err := e.close(ctx, o.ID, offer.StatusExpired); err != nil {
			if apperror.Is(err, apperror.KindStateConflict) {
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		e.log.WithField("count", n).Info("matching: offers expired")
	}
	return n, nil
}

func (e *Engine) ListOpen(ctx context.Context, risk offer.RiskProfile, limit int) ([]offer.Offer, error) {
	if risk != "" && !risk.Valid() {
		return nil, apperror.Validation("invalid risk_profile %q", risk)
	}
	return e.uow.Repos().Offers.ListOpen(ctx, risk, limit)
}

func (e *Engine) GetOffer(ctx context.Context, offerID string) (*offer.Offer, error) {
	return e.uow.Repos().Offers.GetByID(ctx, offerID)
}
