package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/usecase/loan"
	"p2p-credit-backend/internal/usecase/reconciliation"
)

type OverdueSweeper interface {
	SweepOverdue(ctx context.Context) (loan.SweepResult, error)
}

type OfferExpirer interface {
	ExpireOffers(ctx context.Context, asOf time.Time) (int, error)
}

type DepositRetrier interface {
	RetryPendingDeposits(ctx context.Context) (int, error)
}

type PortfolioReconciler interface {
	ReconcilePortfolio(ctx context.Context) (*reconciliation.PortfolioReport, error)
}

func OverdueSweep(s OverdueSweeper, every time.Duration, log logrus.FieldLogger) Job {
	return Job{Name: "overdue-sweep", Every: every, Run: func(ctx context.Context) error {
		res, err := s.SweepOverdue(ctx)
		if err != nil {
			return err
		}
		if res.Overdue > 0 || res.Defaulted > 0 {
			log.WithFields(logrus.Fields{"overdue": res.Overdue, "defaulted": res.Defaulted}).Info("worker: overdue sweep")
		}
		return nil
	}}
}

func OfferExpiry(e OfferExpirer, every time.Duration, now func() time.Time) Job {
	return Job{Name: "offer-expiry", Every: every, Run: func(ctx context.Context) error {
		_, err := e.ExpireOffers(ctx, now())
		return err
	}}
}

// DepositRetry re-drives holds whose executor deposit is still unconfirmed.
func DepositRetry(r DepositRetrier, every time.Duration, log logrus.FieldLogger) Job {
	return Job{Name: "deposit-retry", Every: every, Run: func(ctx context.Context) error {
		n, err := r.RetryPendingDeposits(ctx)
		if n > 0 {
			log.WithField("confirmed", n).Info("worker: pending deposits confirmed")
		}
		return err
	}}
}

func PortfolioReconcile(r PortfolioReconciler, every time.Duration, log logrus.FieldLogger) Job {
	return Job{Name: "portfolio-reconcile", Every: every, Run: func(ctx context.Context) error {
		rep, err := r.ReconcilePortfolio(ctx)
		if err != nil {
			return err
		}
		entry := log.WithFields(logrus.Fields{
			"run_id":     rep.RunID,
			"total":      rep.Total,
			"reconciled": rep.Reconciled,
			"percentage": rep.Percentage.StringFixed(2),
		})
		if rep.Reconciled < rep.Total {
			entry.Warn("worker: portfolio has unreconciled loans")
			return nil
		}
		entry.Info("worker: portfolio reconciled")
		return nil
	}}
}
