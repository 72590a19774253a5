package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/account"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/pkg/id"
)

// Entry is one leg posted against an account. Amount is always positive,
// Direction carries the sign.
type Entry struct {
	AccountID  string
	Amount     decimal.Decimal
	Direction  ledgerDomain.Direction
	TxType     ledgerDomain.TxType
	LoanID     string
	TransferID string
	Reference  string
}

func (e Entry) validate() error {
	if e.AccountID == "" {
		return apperror.Validation("account_id is required")
	}
	if !e.Amount.IsPositive() {
		return apperror.Validation("amount must be positive, got %s", e.Amount)
	}
	if !e.Amount.Equal(e.Amount.Round(2)) {
		return apperror.Validation("amount %s has more than 2 decimal places", e.Amount)
	}
	if !e.Direction.Valid() {
		return apperror.Validation("invalid direction %q", e.Direction)
	}
	if !e.TxType.Valid() {
		return apperror.Validation("invalid tx_type %q", e.TxType)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Apply locks the account, checks and moves its balance and appends the
// transaction row. It must run inside the caller's transaction (r is tx-bound)
// so the balance write and the row insert commit together.
func Apply(ctx context.Context, r uow.Repos, e Entry, at time.Time) (*ledgerDomain.Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	acc, err := r.Accounts.GetByIDForUpdate(ctx, e.AccountID)
	if err != nil {
		return nil, err
	}
	if acc.Status != account.StatusActive {
		return nil, account.ErrNotActive.WithMessage("account %s is %s", acc.ID, acc.Status)
	}

	signed := e.Amount
	if e.Direction == ledgerDomain.DirectionOut {
		if acc.Balance.LessThan(e.Amount) && !e.TxType.OverdraftExempt() {
			return nil, ledgerDomain.ErrInsufficientFunds.WithMessage(
				"account %s balance %s < %s", acc.ID, acc.Balance.StringFixed(2), e.Amount.StringFixed(2))
		}
		signed = e.Amount.Neg()
	}

	acc.Balance = acc.Balance.Add(signed)
	if err := r.Accounts.Save(ctx, acc); err != nil {
		return nil, err
	}

	tx := &ledgerDomain.Transaction{
		ID:           id.New(),
		AccountID:    acc.ID,
		LoanID:       optional(e.LoanID),
		TransferID:   optional(e.TransferID),
		Amount:       signed,
		Direction:    e.Direction,
		TxType:       e.TxType,
		Status:       ledgerDomain.StatusCompleted,
		BalanceAfter: acc.Balance,
		Reference:    e.Reference,
		CreatedAt:    at,
	}
	if err := r.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

type Transfer struct {
	From      string
	To        string
	Amount    decimal.Decimal
	TxType    ledgerDomain.TxType
	LoanID    string
	Reference string
}

// ApplyTransfer posts the OUT leg on from followed by the IN leg on to, sharing a
// transfer id. Both rows are locked up front in id order so two opposite
// transfers cannot deadlock, and an unusable destination fails before any
// leg is written. Any error leaves the caller's transaction to roll back.
func ApplyTransfer(ctx context.Context, r uow.Repos, t Transfer, at time.Time) (out, in *ledgerDomain.Transaction, err error) {
	if t.From == "" || t.To == "" {
		return nil, nil, apperror.Validation("transfer needs both accounts")
	}
	if t.From == t.To {
		return nil, nil, apperror.Validation("cannot transfer account %s to itself", t.From)
	}

	ids := []string{t.From, t.To}
	sort.Strings(ids)
	for _, accID := range ids {
		acc, err := r.Accounts.GetByIDForUpdate(ctx, accID)
		if err != nil {
			return nil, nil, err
		}
		if acc.Status != account.StatusActive {
			return nil, nil, account.ErrNotActive.WithMessage("account %s is %s", acc.ID, acc.Status)
		}
	}

	transferID := id.New()
	out, err = Apply(ctx, r, Entry{
		AccountID: t.From, Amount: t.Amount, Direction: ledgerDomain.DirectionOut,
		TxType: t.TxType, LoanID: t.LoanID, TransferID: transferID, Reference: t.Reference,
	}, at)
	if err != nil {
		return nil, nil, err
	}
	in, err = Apply(ctx, r, Entry{
		AccountID: t.To, Amount: t.Amount, Direction: ledgerDomain.DirectionIn,
		TxType: t.TxType, LoanID: t.LoanID, TransferID: transferID, Reference: t.Reference,
	}, at)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}
