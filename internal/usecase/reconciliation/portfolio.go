package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/pkg/id"
)

var hundred = decimal.NewFromInt(100)

type PortfolioReport struct {
	RunID      string          `json:"run_id"`
	Total      int             `json:"total_loans_with_resolved_escrow"`
	Reconciled int             `json:"reconciled_loans"`
	Percentage decimal.Decimal `json:"reconciled_percentage"`
	Mismatched []string        `json:"mismatched_loan_ids"`
	Failed     []string        `json:"failed_loan_ids,omitempty"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// Percent is reconciled / total * 100 to two places; an empty portfolio is
// fully reconciled.
func Percent(reconciled, total int) decimal.Decimal {
	if total == 0 {
		return hundred.Round(2)
	}
	return decimal.NewFromInt(int64(reconciled)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(2)
}

// ReconcilePortfolio reconciles every loan whose latest hold reached a
// terminal state. A loan that cannot be read counts as not reconciled.
func (s *Service) ReconcilePortfolio(ctx context.Context) (*PortfolioReport, error) {
	holds, err := s.uow.Repos().Holds.ListByStatus(ctx,
		escrowDomain.HoldReleased, escrowDomain.HoldRefunded, escrowDomain.HoldFailed)
	if err != nil {
		return nil, err
	}

	out := &PortfolioReport{RunID: id.New(), Mismatched: []string{}, CheckedAt: s.now()}
	seen := make(map[string]bool)
	for _, h := range holds {
		if seen[h.LoanID] {
			continue
		}
		seen[h.LoanID] = true

		rep, err := s.reconcile(ctx, out.RunID, h.LoanID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithError(err).WithField("loan_id", h.LoanID).Error("reconciliation: loan failed")
			out.Total++
			out.Failed = append(out.Failed, h.LoanID)
			continue
		}
		if !rep.HoldStatus.Terminal() {
			// a newer hold replaced the resolved one
			continue
		}
		out.Total++
		if rep.Matched {
			out.Reconciled++
		} else {
			out.Mismatched = append(out.Mismatched, h.LoanID)
		}
	}
	out.Percentage = Percent(out.Reconciled, out.Total)

	s.log.WithFields(logrus.Fields{
		"run_id": out.RunID, "total": out.Total, "reconciled": out.Reconciled, "percentage": out.Percentage.StringFixed(2),
	}).Info("reconciliation: portfolio run finished")
	return out, nil
}
