// Package app wires configuration, storage and use cases into the API
// server, its background jobs and the reconciler CLI.
package app

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p2p-credit-backend/internal/adapter/executor/gateway"
	"p2p-credit-backend/internal/adapter/executor/memory"
	httpadp "p2p-credit-backend/internal/adapter/http"
	"p2p-credit-backend/internal/adapter/middleware"
	"p2p-credit-backend/internal/adapter/repository/mysql"
	"p2p-credit-backend/internal/config"
	escrowDomain "p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/infrastructure/cache"
	"p2p-credit-backend/internal/infrastructure/db"
	"p2p-credit-backend/internal/schedule"
	"p2p-credit-backend/internal/usecase/approval"
	"p2p-credit-backend/internal/usecase/escrow"
	"p2p-credit-backend/internal/usecase/ledger"
	"p2p-credit-backend/internal/usecase/loan"
	"p2p-credit-backend/internal/usecase/matching"
	"p2p-credit-backend/internal/usecase/reconciliation"
	"p2p-credit-backend/internal/worker"
)

type Services struct {
	Ledger         *ledger.Service
	Escrow         *escrow.Service
	Matching       *matching.Engine
	Loans          *loan.Usecase
	Approvals      *approval.Usecase
	Reconciliation *reconciliation.Service

	now func() time.Time
}

// OpenDB connects to the configured database and migrates it when asked.
func OpenDB(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		gdb, err = db.OpenSQLite(cfg.SQLitePath, log)
	default:
		gdb, err = db.OpenGorm(cfg.MySQLDSN(), log)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if cfg.DBAutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return gdb, nil
}

func NewExecutor(cfg *config.Config) escrowDomain.Executor {
	if cfg.EscrowExecutor == "gateway" {
		return gateway.NewClient(cfg.EscrowGatewayURL, cfg.EscrowGatewayToken, cfg.ExecutorTimeout)
	}
	return memory.New()
}

// NewServices builds every use case on one unit of work. now overrides the
// clock of all of them; nil keeps the wall clock.
func NewServices(cfg *config.Config, gdb *gorm.DB, exec escrowDomain.Executor, log logrus.FieldLogger, now func() time.Time) *Services {
	u := mysql.NewGormUoW(gdb)
	penalty := schedule.PenaltyPolicy{DailyRate: cfg.PenaltyDailyRate, LateFeeRate: cfg.LateFeeRate}

	s := &Services{
		Ledger: ledger.NewService(u, log),
		Escrow: escrow.NewService(u, exec, log, cfg.ExecutorTimeout),
		now:    time.Now,
	}
	s.Matching = matching.NewEngine(u, s.Escrow, log)
	s.Loans = loan.NewUsecase(u, s.Matching, penalty, cfg.DefaultAfterDays, log)
	s.Approvals = approval.NewUsecase(u, s.Escrow, s.Loans, log)
	s.Reconciliation = reconciliation.NewService(u, exec, log)

	if now != nil {
		s.now = now
		s.Ledger.WithClock(now)
		s.Escrow.WithClock(now)
		s.Matching.WithClock(now)
		s.Loans.WithClock(now)
		s.Approvals.WithClock(now)
		s.Reconciliation.WithClock(now)
	}
	return s
}

func (s *Services) Handlers(cfg *config.Config, rdb *redis.Client) httpadp.Handlers {
	return httpadp.Handlers{
		Health:         httpadp.NewHandler().WithClock(s.now),
		Accounts:       httpadp.NewAccountHandler(s.Ledger),
		Offers:         httpadp.NewOfferHandler(s.Matching),
		Loans:          httpadp.NewLoanHandler(s.Loans),
		Approvals:      httpadp.NewApprovalHandler(s.Approvals),
		Escrow:         httpadp.NewEscrowHandler(s.Escrow),
		Reconciliation: httpadp.NewReconciliationHandler(s.Reconciliation),
		Webhooks: httpadp.NewWebhookHandler(s.Escrow,
			cache.NewDeduper(rdb, "webhook:escrow:", cfg.WebhookDedupeTTL), cfg.WebhookSecret),
	}
}

// NewServer returns the echo instance with every route mounted.
func NewServer(cfg *config.Config, s *Services, rdb *redis.Client, log logrus.FieldLogger) (*echo.Echo, error) {
	lim, err := middleware.NewLimiter(rdb, cfg.RateLimit, cfg.RateLimitPeriod)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover())

	httpadp.Register(e, s.Handlers(cfg, rdb),
		middleware.RateLimit(lim),
		middleware.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, log),
	)
	return e, nil
}

// Jobs are the periodic tasks run next to the API.
func (s *Services) Jobs(cfg *config.Config, log logrus.FieldLogger) []worker.Job {
	return []worker.Job{
		worker.OverdueSweep(s.Loans, cfg.SweepInterval, log),
		worker.OfferExpiry(s.Matching, cfg.SweepInterval, s.now),
		worker.DepositRetry(s.Escrow, cfg.SweepInterval, log),
		worker.PortfolioReconcile(s.Reconciliation, cfg.ReconcileInterval, log),
	}
}
