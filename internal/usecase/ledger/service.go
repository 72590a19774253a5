package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/domain/account"
	ledgerDomain "p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/uow"
	"p2p-credit-backend/internal/pkg/apperror"
	"p2p-credit-backend/pkg/id"
)

type Service struct {
	uow uow.UnitOfWork
	log logrus.FieldLogger
	now func() time.Time
}

func NewService(u uow.UnitOfWork, log logrus.FieldLogger) *Service {
	return &Service{uow: u, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ApplyTransaction(ctx context.Context, e Entry) (*ledgerDomain.Transaction, error) {
	var out *ledgerDomain.Transaction
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		tx, err := Apply(ctx, r, e, s.now())
		out = tx
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"account_id": e.AccountID, "tx_type": e.TxType, "direction": e.Direction, "amount": e.Amount.StringFixed(2),
	}).Debug("ledger: transaction applied")
	return out, nil
}

func (s *Service) TransferFunds(ctx context.Context, t Transfer) (out, in *ledgerDomain.Transaction, err error) {
	err = s.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, in, err = ApplyTransfer(ctx, r, t, s.now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := s.uow.Repos().Accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	return s.uow.Repos().Accounts.GetByID(ctx, accountID)
}

func (s *Service) GetHistory(ctx context.Context, accountID string, f ledgerDomain.Filter) ([]ledgerDomain.Transaction, error) {
	repos := s.uow.Repos()
	if _, err := repos.Accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperror.Validation("limit and offset cannot be negative")
	}
	return repos.Transactions.ListByAccount(ctx, accountID, f)
}

func (s *Service) OpenAccount(ctx context.Context, ownerID string, kind account.Kind) (*account.Account, error) {
	if ownerID == "" {
		return nil, apperror.Validation("owner_id is required")
	}
	if !kind.Valid() {
		return nil, apperror.Validation("invalid account kind %q", kind)
	}
	acc := &account.Account{
		ID:      id.New(),
		OwnerID: ownerID,
		Kind:    kind,
		Balance: decimal.Zero,
		Status:  account.StatusActive,
	}
	if err := s.uow.Repos().Accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": acc.ID, "owner_id": ownerID, "kind": kind}).Info("ledger: account opened")
	return acc, nil
}

func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*ledgerDomain.Transaction, error) {
	return s.ApplyTransaction(ctx, Entry{
		AccountID: accountID, Amount: amount, Direction: ledgerDomain.DirectionIn,
		TxType: ledgerDomain.TxDeposit, Reference: reference,
	})
}

func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*ledgerDomain.Transaction, error) {
	return s.ApplyTransaction(ctx, Entry{
		AccountID: accountID, Amount: amount, Direction: ledgerDomain.DirectionOut,
		TxType: ledgerDomain.TxWithdrawal, Reference: reference,
	})
}

// SetStatus blocks, unblocks or closes an account.
func (s *Service) SetStatus(ctx context.Context, accountID string, next account.Status) (*account.Account, error) {
	var out *account.Account
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		acc, err := r.Accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := acc.Transition(next); err != nil {
			return err
		}
		out = acc
		return r.Accounts.Save(ctx, acc)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": accountID, "status": next}).Info("ledger: account status changed")
	return out, nil
}
