// Package memory is the off-chain escrow executor: custody state kept in
// process, every call idempotent by hold id and idempotency key. Faults can
// be queued per operation to drive failure paths.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/pkg/id"
)

type Op string

const (
	OpDeposit   Op = "deposit"
	OpRelease   Op = "release"
	OpRefund    Op = "refund"
	OpGetStatus Op = "status"
)

type custody struct {
	state  escrow.ExecutorState
	amount decimal.Decimal
	ref    string
}

type Executor struct {
	mu      sync.Mutex
	holds   map[string]*custody
	applied map[string]string
	faults  map[Op][]error
	calls   map[Op]int
}

var _ escrow.Executor = (*Executor)(nil)

func New() *Executor {
	return &Executor{
		holds:   map[string]*custody{},
		applied: map[string]string{},
		faults:  map[Op][]error{},
		calls:   map[Op]int{},
	}
}

// FailNext makes the next call of op return err without touching state.
func (e *Executor) FailNext(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = append(e.faults[op], err)
}

// Override forces the reported state of a hold (divergence scenarios).
func (e *Executor) Override(holdID string, state escrow.ExecutorState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.custody(holdID)
	c.state = state
}

func (e *Executor) Calls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

func (e *Executor) custody(holdID string) *custody {
	c, ok := e.holds[holdID]
	if !ok {
		c = &custody{state: escrow.ExecutorNone}
		e.holds[holdID] = c
	}
	return c
}

// begin counts the call, pops a queued fault and answers replays.
func (e *Executor) begin(op Op, key string) (string, bool, error) {
	e.calls[op]++
	if q := e.faults[op]; len(q) > 0 {
		e.faults[op] = q[1:]
		return "", true, q[0]
	}
	if ref, ok := e.applied[key]; ok && key != "" {
		return ref, true, escrow.ErrAlreadyApplied
	}
	return "", false, nil
}

func newRef() string { return "mem-" + id.NewID32() }

func (e *Executor) Deposit(_ context.Context, holdID string, amount decimal.Decimal, key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, done, err := e.begin(OpDeposit, key); done {
		return ref, err
	}
	c := e.custody(holdID)
	switch c.state {
	case escrow.ExecutorNone, escrow.ExecutorRequested:
	case escrow.ExecutorDeposited:
		return c.ref, escrow.ErrAlreadyApplied
	default:
		return "", escrow.ErrRejected
	}
	c.state, c.amount, c.ref = escrow.ExecutorDeposited, amount, newRef()
	e.applied[key] = c.ref
	return c.ref, nil
}

func (e *Executor) Release(_ context.Context, holdID, key string) (string, error) {
	return e.settle(OpRelease, holdID, key, escrow.ExecutorReleased)
}

func (e *Executor) Refund(_ context.Context, holdID, key string) (string, error) {
	return e.settle(OpRefund, holdID, key, escrow.ExecutorRefunded)
}

func (e *Executor) settle(op Op, holdID, key string, target escrow.ExecutorState) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, done, err := e.begin(op, key); done {
		return ref, err
	}
	c := e.custody(holdID)
	switch c.state {
	case target:
		return c.ref, escrow.ErrAlreadyApplied
	case escrow.ExecutorDeposited:
	case escrow.ExecutorNone, escrow.ExecutorRequested:
		// nothing in custody: a refund is a no-op, a release is impossible
		if target != escrow.ExecutorRefunded {
			return "", escrow.ErrRejected
		}
	default:
		return "", escrow.ErrRejected
	}
	c.state, c.ref = target, newRef()
	e.applied[key] = c.ref
	return c.ref, nil
}

func (e *Executor) GetStatus(_ context.Context, holdID string) (escrow.ExecutorState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done, err := e.begin(OpGetStatus, ""); done {
		return "", err
	}
	if c, ok := e.holds[holdID]; ok {
		return c.state, nil
	}
	return escrow.ExecutorNone, nil
}
