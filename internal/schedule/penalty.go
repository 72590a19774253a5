package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/repayment"
)

// PenaltyPolicy charges a one-off late fee plus a daily rate, both as a
// fraction of the scheduled installment.
type PenaltyPolicy struct {
	DailyRate   decimal.Decimal
	LateFeeRate decimal.Decimal
}

// DaysLate counts started days past due; zero when asOf is not after due.
func DaysLate(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	d := asOf.Sub(due)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func (p PenaltyPolicy) Penalty(installment decimal.Decimal, due, asOf time.Time) decimal.Decimal {
	days := DaysLate(due, asOf)
	if days == 0 {
		return decimal.Zero
	}
	factor := p.LateFeeRate.Add(p.DailyRate.Mul(decimal.NewFromInt(int64(days))))
	return round2(installment.Mul(factor))
}

// Apply sets r.PenaltyComponent for an open installment past its due date.
// Settled installments keep whatever penalty was charged when they were paid.
func (p PenaltyPolicy) Apply(r *repayment.Repayment, asOf time.Time) decimal.Decimal {
	if !r.Status.Open() {
		return r.PenaltyComponent
	}
	r.PenaltyComponent = p.Penalty(r.Installment(), r.DueDate, asOf)
	return r.PenaltyComponent
}

// Anticipate returns the early payoff of an installment paid before its due
// date: the interest is reduced in proportion to the days left in the period.
func Anticipate(r repayment.Repayment, asOf time.Time, periodDays int) (decimal.Decimal, error) {
	if r.Status != repayment.StatusPending || !asOf.Before(r.DueDate) {
		return decimal.Zero, repayment.ErrNotAnticipatable.WithMessage(
			"installment %d of loan %s is %s, due %s", r.InstallmentNumber, r.LoanID, r.Status, r.DueDate.Format(time.DateOnly))
	}
	remaining := int(r.DueDate.Sub(asOf) / (24 * time.Hour))
	if remaining > periodDays {
		remaining = periodDays
	}
	discount := r.InterestComponent.
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(periodDays)))
	return round2(r.Installment().Sub(discount)), nil
}
