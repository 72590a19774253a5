// Package schedule builds equal-installment (French) amortization plans and
// the penalty and early-payoff amounts derived from them. Everything here is
// pure: no clock, no storage.
package schedule

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrincipal = errors.New("schedule: principal must be positive")
	ErrInvalidRate      = errors.New("schedule: rate cannot be negative")
	ErrInvalidTerm      = errors.New("schedule: term must be at least one period")
	ErrTooSmall         = errors.New("schedule: principal too small for the number of installments")
)

// Period is the spacing between installments.
type Period string

const (
	Monthly Period = "MONTHLY"
	Weekly  Period = "WEEKLY"
)

// Days is the nominal length used for term conversion and anticipation.
func (p Period) Days() int {
	if p == Weekly {
		return 7
	}
	return 30
}

func (p Period) perYear() int64 {
	if p == Weekly {
		return 52
	}
	return 12
}

// DueDate of installment k (1-based) counted from start.
func (p Period) DueDate(start time.Time, k int) time.Time {
	if p == Weekly {
		return start.AddDate(0, 0, 7*k)
	}
	return start.AddDate(0, k, 0)
}

// PeriodicRate converts an annual nominal rate to the per-period rate.
func PeriodicRate(annual decimal.Decimal, p Period) decimal.Decimal {
	return annual.Div(decimal.NewFromInt(p.perYear()))
}

// PeriodsFor returns ceil(termDays / period length), at least one.
func PeriodsFor(termDays int, p Period) int {
	d := p.Days()
	n := (termDays + d - 1) / d
	if n < 1 {
		return 1
	}
	return n
}

type Installment struct {
	Number    int
	Principal decimal.Decimal
	Interest  decimal.Decimal
	DueDate   time.Time
}

func (i Installment) Amount() decimal.Decimal { return i.Principal.Add(i.Interest) }

var one = decimal.NewFromInt(1)

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Payment is the unrounded equal installment P*r*(1+r)^n / ((1+r)^n - 1).
func Payment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n)))
	}
	f := one.Add(rate).Pow(decimal.NewFromInt(int64(n)))
	return principal.Mul(rate).Mul(f).Div(f.Sub(one))
}

// Generate splits principal into n equal installments at periodic rate r.
//
// Interest is computed on the exact (unrounded) outstanding balance and only
// the per-installment figures are rounded. The last installment absorbs the
// residuals so that sum(principal) == principal and
// sum(interest) == installment*n - principal, to the cent.
//
// Plans where an installment would round to zero or a component would go
// negative cannot be paid and fail with ErrTooSmall.
func Generate(principal, rate decimal.Decimal, n int, start time.Time, p Period) ([]Installment, error) {
	if !principal.IsPositive() {
		return nil, ErrInvalidPrincipal
	}
	if rate.IsNegative() {
		return nil, ErrInvalidRate
	}
	if n < 1 {
		return nil, ErrInvalidTerm
	}

	exact := Payment(principal, rate, n)
	amount := round2(exact)
	if !amount.IsPositive() {
		return nil, ErrTooSmall
	}

	out := make([]Installment, 0, n)
	balance := principal
	sumPrincipal := decimal.Zero
	sumInterest := decimal.Zero

	for k := 1; k < n; k++ {
		interest := round2(balance.Mul(rate))
		part := amount.Sub(interest)
		if rate.IsZero() {
			interest, part = decimal.Zero, amount
		}
		out = append(out, Installment{Number: k, Principal: part, Interest: interest, DueDate: p.DueDate(start, k)})
		sumPrincipal = sumPrincipal.Add(part)
		sumInterest = sumInterest.Add(interest)
		balance = balance.Mul(one.Add(rate)).Sub(exact)
	}

	last := Installment{Number: n, DueDate: p.DueDate(start, n)}
	last.Principal = principal.Sub(sumPrincipal)
	if rate.IsZero() {
		last.Interest = decimal.Zero
	} else {
		last.Interest = amount.Mul(decimal.NewFromInt(int64(n))).Sub(principal).Sub(sumInterest)
	}
	out = append(out, last)

	for _, it := range out {
		if it.Principal.IsNegative() || it.Interest.IsNegative() || !it.Amount().IsPositive() {
			return nil, ErrTooSmall
		}
	}
	return out, nil
}

// Check reports whether principal splits into n payable installments at
// periodic rate r.
func Check(principal, rate decimal.Decimal, n int) error {
	_, err := Generate(principal, rate, n, time.Time{}, Monthly)
	return err
}

// Totals sums a plan.
func Totals(items []Installment) (principal, interest decimal.Decimal) {
	principal, interest = decimal.Zero, decimal.Zero
	for _, it := range items {
		principal = principal.Add(it.Principal)
		interest = interest.Add(it.Interest)
	}
	return principal, interest
}
