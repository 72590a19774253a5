package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"p2p-credit-backend/internal/domain/account"
	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/repayment"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/testutil/dbtest"
	"p2p-credit-backend/pkg/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAccountRepository_CreateGetSave(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewAccountRepository(gdb)
	ctx := context.Background()

	a := &account.Account{ID: id.New(), OwnerID: "inv-1", Kind: account.KindInvestor, Balance: dec("100.50"), Status: account.StatusActive}
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.GetByIDForUpdate(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100.50")), got.Balance.String())

	got.Balance = dec("0")
	require.NoError(t, repo.Save(ctx, got))
	again, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, again.Balance.IsZero())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestTransactionRepository_Filters(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewTransactionRepository(gdb)
	ctx := context.Background()
	loanID := id.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := []*ledger.Transaction{
		{ID: id.New(), AccountID: "acc", Amount: dec("500"), Direction: ledger.DirectionIn, TxType: ledger.TxDeposit, Status: ledger.StatusCompleted, BalanceAfter: dec("500"), CreatedAt: base},
		{ID: id.New(), AccountID: "acc", LoanID: &loanID, Amount: dec("-200"), Direction: ledger.DirectionOut, TxType: ledger.TxTransfer, Status: ledger.StatusCompleted, BalanceAfter: dec("300"), CreatedAt: base.Add(time.Hour)},
		{ID: id.New(), AccountID: "other", LoanID: &loanID, Amount: dec("200"), Direction: ledger.DirectionIn, TxType: ledger.TxTransfer, Status: ledger.StatusCompleted, BalanceAfter: dec("200"), CreatedAt: base.Add(time.Hour)},
	}
	for _, r := range rows {
		require.NoError(t, repo.Create(ctx, r))
	}

	all, err := repo.ListByAccount(ctx, "acc", ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.TxTransfer, all[0].TxType, "newest first")

	outs, err := repo.ListByAccount(ctx, "acc", ledger.Filter{Direction: ledger.DirectionOut})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Magnitude().Equal(dec("200")))

	byLoan, err := repo.ListByLoan(ctx, loanID)
	require.NoError(t, err)
	assert.Len(t, byLoan, 2)

	ranged, err := repo.ListByAccount(ctx, "acc", ledger.Filter{From: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, ranged, 1)
}

func newOffer(rate string, created time.Time) *offer.Offer {
	return &offer.Offer{
		ID: id.New(), InvestorID: "inv", AccountID: "acc",
		Amount: dec("1000"), Rate: dec(rate), TermDays: 90,
		RiskProfile: offer.RiskLow, Status: offer.StatusOpen, Version: 1,
		CreatedAt: created,
	}
}

func TestOfferRepository_CandidatesOrderedByRateThenFIFO(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewOfferRepository(gdb)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	late := newOffer("0.10", t0.Add(time.Minute))
	early := newOffer("0.10", t0)
	cheap := newOffer("0.08", t0.Add(time.Hour))
	small := newOffer("0.01", t0)
	small.Amount = dec("100")
	picky := newOffer("0.02", t0)
	picky.MinCreditScore = 800
	for _, o := range []*offer.Offer{late, early, cheap, small, picky} {
		require.NoError(t, repo.Create(ctx, o))
	}

	got, err := repo.FindCandidates(ctx, offer.Criteria{Amount: dec("500"), RiskProfile: offer.RiskLow, CreditScore: 700, AsOf: t0}, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{cheap.ID, early.ID, late.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestOfferRepository_CompareAndSwap(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewOfferRepository(gdb)
	ctx := context.Background()
	o := newOffer("0.1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, o))
	loanID := id.New()

	ok, err := repo.CompareAndSwapStatus(ctx, o.ID, 1, offer.StatusOpen, offer.StatusMatched, &loanID)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version loses
	ok, err = repo.CompareAndSwapStatus(ctx, o.ID, 1, offer.StatusOpen, offer.StatusMatched, &loanID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusMatched, got.Status)
	assert.Equal(t, uint64(2), got.Version)
	require.NotNil(t, got.MatchedLoanID)
	assert.Equal(t, loanID, *got.MatchedLoanID)
}

func TestHoldRepository_OneActivePerLoan(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewHoldRepository(gdb)
	ctx := context.Background()
	loanID := id.New()

	mk := func() *escrow.Hold {
		return &escrow.Hold{ID: id.New(), LoanID: loanID, ActiveLoanID: &loanID, Amount: dec("10"), Status: escrow.HoldPending, CreatedAt: time.Now().UTC()}
	}
	first := mk()
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, mk())
	assert.ErrorIs(t, err, escrow.ErrEscrowAlreadyExists)

	active, err := repo.HasActive(ctx, loanID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, first.Transition(escrow.HoldRefunded, time.Now().UTC()))
	require.NoError(t, repo.Save(ctx, first))

	active, err = repo.HasActive(ctx, loanID)
	require.NoError(t, err)
	assert.False(t, active)
	require.NoError(t, repo.Create(ctx, mk()), "terminal hold frees the slot")
}

func TestEventRepository_SequenceAndDuplicateHash(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewEventRepository(gdb)
	ctx := context.Background()
	h := &escrow.Hold{ID: id.New(), LoanID: id.New(), Amount: dec("250")}

	seq, err := repo.NextSequence(ctx, h.LoanID)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	e := escrow.NewEvent(id.New(), h, escrow.EventCreated, seq, "", time.Now().UTC())
	require.NoError(t, repo.Append(ctx, &e))

	dup := escrow.NewEvent(id.New(), h, escrow.EventCreated, seq, "", time.Now().UTC())
	assert.ErrorIs(t, repo.Append(ctx, &dup), escrow.ErrDuplicateEvent)

	seq, err = repo.NextSequence(ctx, h.LoanID)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	got, err := repo.GetByHash(ctx, e.EventHash)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = repo.GetByHash(ctx, strings.Repeat("0", 64))
	assert.ErrorIs(t, err, escrow.ErrEventNotFound)
}

func TestRepaymentRepository_MarkOverdue(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewRepaymentRepository(gdb)
	ctx := context.Background()
	loanID := id.New()
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rs := []repayment.Repayment{
		{ID: id.New(), LoanID: loanID, InstallmentNumber: 1, PrincipalComponent: dec("90"), InterestComponent: dec("10"), DueDate: due, Status: repayment.StatusPending},
		{ID: id.New(), LoanID: loanID, InstallmentNumber: 2, PrincipalComponent: dec("95"), InterestComponent: dec("5"), DueDate: due.AddDate(0, 1, 0), Status: repayment.StatusPending},
	}
	require.NoError(t, repo.CreateBatch(ctx, rs))

	n, err := repo.MarkOverdue(ctx, due.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := repo.ListByLoan(ctx, loanID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, repayment.StatusOverdue, list[0].Status)
	assert.Equal(t, repayment.StatusPending, list[1].Status)

	open, err := repo.ListOpenDueBefore(ctx, due.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = repo.GetForUpdate(ctx, loanID, 9)
	assert.ErrorIs(t, err, repayment.ErrNotFound)
}

func makeLoan() *loan.Loan {
	return &loan.Loan{
		ID: id.New(), BorrowerID: "b-1", BorrowerAccountID: "acc-b", LenderID: "i-1", LenderAccountID: "acc-i",
		Principal: dec("1000"), InterestRate: dec("0.12"), TermDays: 90, Installments: 3,
		Frequency: loan.FrequencyMonthly, RiskProfile: offer.RiskLow, Status: loan.StatusDraft,
		StatusUpdatedAt: time.Now().UTC(),
	}
}

func TestGormUoW_WithinLoanTx_CommitAndRollback(t *testing.T) {
	gdb := dbtest.Open(t)
	u := NewGormUoW(gdb)
	ctx := context.Background()
	l := makeLoan()
	require.NoError(t, u.Repos().Loans.Create(ctx, l))

	err := u.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		if err := locked.Transition(loan.StatusPending, time.Now().UTC()); err != nil {
			return err
		}
		return r.Loans.Save(ctx, locked)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = u.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		_ = locked.Transition(loan.StatusCancelled, time.Now().UTC())
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := u.Repos().Loans.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusPending, got.Status, "rolled back")

	err = u.WithinLoanTx(ctx, "nope", func(uow.Repos, *loan.Loan) error { return nil })
	assert.ErrorIs(t, err, loan.ErrNotFound)
}
