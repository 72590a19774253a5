package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-credit-backend/internal/domain/account"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/pkg/apperror"
)

func TestCreateOffer_Validation(t *testing.T) {
	en := newEnv(t, &holdMock{})
	ctx := context.Background()
	inv, err := en.ledger.OpenAccount(ctx, "inv", account.KindInvestor)
	require.NoError(t, err)
	_, err = en.ledger.Deposit(ctx, inv.ID, d("100"), "")
	require.NoError(t, err)

	base := CreateOfferInput{InvestorAccountID: inv.ID, Amount: d("100"), Rate: d("0.1"), TermDays: 30, RiskProfile: offer.RiskMedium}

	bad := []func(*CreateOfferInput){
		func(in *CreateOfferInput) { in.Amount = d("0") },
		func(in *CreateOfferInput) { in.Rate = d("-0.1") },
		func(in *CreateOfferInput) { in.TermDays = 0 },
		func(in *CreateOfferInput) { in.RiskProfile = "NONE" },
		func(in *CreateOfferInput) { past := en.clock.Add(-time.Hour); in.ExpiresAt = &past },
		func(in *CreateOfferInput) { in.Amount = d("0.05"); in.TermDays = 360 },
	}
	for i, mutate := range bad {
		in := base
		mutate(&in)
		_, err := en.engine.CreateOffer(ctx, in)
		assert.True(t, apperror.Is(err, apperror.KindValidation), "case %d: %v", i, err)
	}

	in := base
	in.Amount = d("100.01")
	_, err = en.engine.CreateOffer(ctx, in)
	assert.ErrorIs(t, err, ledgerDomain.ErrInsufficientFunds)

	in = base
	in.InvestorAccountID = en.borrower.ID
	_, err = en.engine.CreateOffer(ctx, in)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	o, err := en.engine.CreateOffer(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, "inv", o.InvestorID)
	assert.Equal(t, uint64(1), o.Version)
}

func TestCancelAndExpireOffers(t *testing.T) {
	en := newEnv(t, &holdMock{})
	ctx := context.Background()

	o := en.offer(t, "500", "500", "0.1", nil)
	cancelled, err := en.engine.CancelOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusCancelled, cancelled.Status)

	_, err = en.engine.CancelOffer(ctx, o.ID)
	assert.ErrorIs(t, err, offer.ErrNotOpen)
	_, err = en.engine.CancelOffer(ctx, "missing")
	assert.ErrorIs(t, err, offer.ErrNotFound)

	exp := en.clock.Add(10 * time.Minute)
	soon := en.offer(t, "500", "500", "0.2", func(in *CreateOfferInput) { in.ExpiresAt = &exp })
	keep := en.offer(t, "500", "500", "0.3", nil)

	n, err := en.engine.ExpireOffers(ctx, exp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := en.engine.GetOffer(ctx, soon.ID)
	assert.Equal(t, offer.StatusExpired, got.Status)

	open, err := en.engine.ListOpen(ctx, offer.RiskLow, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, keep.ID, open[0].ID)
}
