package reconciliation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	reconDomain "p2p-credit-backend/internal/domain/reconciliation"
	"p2p-credit-backend/pkg/id"
)

var (
	highAmount     = decimal.NewFromInt(1000)
	criticalAmount = decimal.NewFromInt(10000)
	mediumAmount   = decimal.NewFromInt(100)
)

func severityFor(expected, actual decimal.Decimal) reconDomain.Severity {
	diff := expected.Sub(actual).Abs()
	switch {
	case diff.GreaterThanOrEqual(criticalAmount):
		return reconDomain.SeverityCritical
	case diff.GreaterThanOrEqual(highAmount):
		return reconDomain.SeverityHigh
	case diff.GreaterThanOrEqual(mediumAmount):
		return reconDomain.SeverityMedium
	}
	return reconDomain.SeverityLow
}

type checker struct {
	rep   *Report
	hold  *escrowDomain.Hold
	at    time.Time
	found []reconDomain.Discrepancy
}

func (c *checker) add(t reconDomain.DiscrepancyType, sev reconDomain.Severity, expected, actual decimal.Decimal, desc string) {
	c.found = append(c.found, reconDomain.Discrepancy{
		ID:          id.New(),
		RunID:       c.rep.RunID,
		LoanID:      c.rep.LoanID,
		HoldID:      c.hold.ID,
		Type:        t,
		Severity:    sev,
		Expected:    expected,
		Actual:      actual,
		Description: desc,
		DetectedAt:  c.at,
	})
}

func (c *checker) compare(t reconDomain.DiscrepancyType, expected, actual decimal.Decimal, what string) {
	if expected.Equal(actual) {
		return
	}
	c.add(t, severityFor(expected, actual), expected, actual,
		fmt.Sprintf("%s: expected %s, got %s", what, expected.StringFixed(2), actual.StringFixed(2)))
}

// eventOrder: CREATED first, strictly increasing sequences, and a single
// settlement event, last, present exactly when the hold is terminal.
func (c *checker) eventOrder(events []escrowDomain.Event) {
	var own []escrowDomain.Event
	for _, e := range events {
		if e.HoldID == c.hold.ID {
			own = append(own, e)
		}
	}
	zero := decimal.Zero
	if len(own) == 0 || own[0].Type != escrowDomain.EventCreated {
		c.add(reconDomain.DiscrepancyEventOrder, reconDomain.SeverityMedium, zero, zero, "first escrow event is not CREATED")
		return
	}
	settled := 0
	for i, e := range own {
		if i > 0 && e.Sequence <= own[i-1].Sequence {
			c.add(reconDomain.DiscrepancyEventOrder, reconDomain.SeverityMedium, zero, zero,
				fmt.Sprintf("event %s has sequence %d after %d", e.ID, e.Sequence, own[i-1].Sequence))
		}
		if e.Type == escrowDomain.EventReleased || e.Type == escrowDomain.EventRefunded {
			settled++
			if i != len(own)-1 {
				c.add(reconDomain.DiscrepancyEventOrder, reconDomain.SeverityHigh, zero, zero,
					fmt.Sprintf("%s event %s is followed by later events", e.Type, e.ID))
			}
		}
	}
	want := 0
	if c.hold.Status.Terminal() {
		want = 1
	}
	if settled != want {
		c.add(reconDomain.DiscrepancyEventOrder, reconDomain.SeverityHigh, zero, zero,
			fmt.Sprintf("hold is %s but has %d settlement events", c.hold.Status, settled))
	}
}

func (c *checker) amounts() {
	h, esc, led := c.hold, c.rep.Escrow, c.rep.Ledger

	c.compare(reconDomain.DiscrepancyDepositMismatch, h.Amount, led.Reserved, "funds reserved into custody")
	if esc.Deposited.IsPositive() {
		c.compare(reconDomain.DiscrepancyDepositMismatch, esc.Deposited, led.Reserved, "DEPOSIT events vs custody ledger")
	}
	c.compare(reconDomain.DiscrepancyReleaseMismatch, esc.Released, led.Disbursed, "RELEASED events vs borrower disbursement")
	c.compare(reconDomain.DiscrepancyRefundMismatch, esc.Refunded, led.Refunded, "REFUNDED events vs investor refund")

	custody := h.Amount
	if h.Status.Terminal() {
		custody = decimal.Zero
	}
	c.compare(reconDomain.DiscrepancyNetMismatch, custody, led.Custody, "custody balance")

	if !h.Status.Terminal() {
		return
	}
	out, wrong := led.Disbursed, led.Refunded
	if h.Status != escrowDomain.HoldReleased {
		out, wrong = led.Refunded, led.Disbursed
	}
	if !out.Equal(h.Amount) || !wrong.IsZero() {
		c.add(reconDomain.DiscrepancyConservation, reconDomain.SeverityCritical, h.Amount, out.Add(wrong),
			fmt.Sprintf("hold %s is %s: %s moved to the expected side, %s to the other",
				h.ID, h.Status, out.StringFixed(2), wrong.StringFixed(2)))
	}
}

// expectedStates lists what the executor may report for the hold's state.
func expectedStates(h *escrowDomain.Hold) []escrowDomain.ExecutorState {
	switch h.Status {
	case escrowDomain.HoldReleased:
		return []escrowDomain.ExecutorState{escrowDomain.ExecutorReleased}
	case escrowDomain.HoldRefunded:
		return []escrowDomain.ExecutorState{escrowDomain.ExecutorRefunded}
	case escrowDomain.HoldFailed:
		return []escrowDomain.ExecutorState{escrowDomain.ExecutorNone, escrowDomain.ExecutorRequested, escrowDomain.ExecutorRefunded}
	}
	if h.ExternalStatus == escrowDomain.ExecutorRequested || h.ExternalStatus == escrowDomain.ExecutorNone || h.ExternalStatus == "" {
		return []escrowDomain.ExecutorState{escrowDomain.ExecutorNone, escrowDomain.ExecutorRequested, escrowDomain.ExecutorDeposited}
	}
	return []escrowDomain.ExecutorState{escrowDomain.ExecutorDeposited}
}

func (c *checker) executor(state escrowDomain.ExecutorState) {
	for _, s := range expectedStates(c.hold) {
		if s == state {
			return
		}
	}
	c.add(reconDomain.DiscrepancyExecutorState, reconDomain.SeverityHigh, c.hold.Amount, decimal.Zero,
		fmt.Sprintf("hold %s is %s but executor reports %s", c.hold.ID, c.hold.Status, state))
}
