package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-credit-backend/internal/domain/escrow"
)

func TestExecutor_DepositReleaseIdempotent(t *testing.T) {
	e := New()
	ctx := context.Background()

	ref, err := e.Deposit(ctx, "h1", decimal.NewFromInt(100), "k-dep")
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	again, err := e.Deposit(ctx, "h1", decimal.NewFromInt(100), "k-dep")
	assert.ErrorIs(t, err, escrow.ErrAlreadyApplied)
	assert.Equal(t, ref, again)

	rel, err := e.Release(ctx, "h1", "k-rel")
	require.NoError(t, err)
	st, _ := e.GetStatus(ctx, "h1")
	assert.Equal(t, escrow.ExecutorReleased, st)

	relAgain, err := e.Release(ctx, "h1", "k-rel-2")
	assert.ErrorIs(t, err, escrow.ErrAlreadyApplied)
	assert.Equal(t, rel, relAgain)

	_, err = e.Refund(ctx, "h1", "k-ref")
	assert.ErrorIs(t, err, escrow.ErrRejected)
	assert.Equal(t, 2, e.Calls(OpRelease))
}

func TestExecutor_ReleaseWithoutDepositRejected(t *testing.T) {
	e := New()
	_, err := e.Release(context.Background(), "h2", "k")
	assert.ErrorIs(t, err, escrow.ErrRejected)

	_, err = e.Refund(context.Background(), "h2", "k2")
	assert.NoError(t, err, "refund of empty custody is a no-op")
}

func TestExecutor_FaultsAreConsumedOnce(t *testing.T) {
	e := New()
	ctx := context.Background()
	boom := errors.New("timeout")
	e.FailNext(OpDeposit, boom)

	_, err := e.Deposit(ctx, "h3", decimal.NewFromInt(5), "k")
	assert.ErrorIs(t, err, boom)
	st, _ := e.GetStatus(ctx, "h3")
	assert.Equal(t, escrow.ExecutorNone, st, "failed call leaves no state")

	_, err = e.Deposit(ctx, "h3", decimal.NewFromInt(5), "k")
	assert.NoError(t, err)

	e.Override("h3", escrow.ExecutorRefunded)
	st, _ = e.GetStatus(ctx, "h3")
	assert.Equal(t, escrow.ExecutorRefunded, st)
}
