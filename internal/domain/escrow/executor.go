package escrow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ExecutorState is the custody state reported by the external executor.
type ExecutorState string

const (
	ExecutorNone      ExecutorState = "NONE"
	ExecutorRequested ExecutorState = "REQUESTED"
	ExecutorDeposited ExecutorState = "DEPOSITED"
	ExecutorReleased  ExecutorState = "RELEASED"
	ExecutorRefunded  ExecutorState = "REFUNDED"
)

var (
	// ErrAlreadyApplied is returned (together with the original tx ref) when
	// the executor has already applied the call carrying this idempotency key.
	ErrAlreadyApplied = errors.New("escrow executor: already applied")
	// ErrRejected is a definitive refusal; retrying with the same key will not succeed.
	ErrRejected = errors.New("escrow executor: rejected")
)

// Executor is the custody capability (off-chain double or on-chain gateway).
// Every call is idempotent by (holdID, idempotencyKey).
type Executor interface {
	Deposit(ctx context.Context, holdID string, amount decimal.Decimal, idempotencyKey string) (string, error)
	Release(ctx context.Context, holdID, idempotencyKey string) (string, error)
	Refund(ctx context.Context, holdID, idempotencyKey string) (string, error)
	GetStatus(ctx context.Context, holdID string) (ExecutorState, error)
}
