package db

import (
	"time"

	"p2p-credit-backend/internal/domain/account"
	"p2p-credit-backend/internal/domain/approval"
	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/domain/ledger"
	"p2p-credit-backend/internal/domain/loan"
	"p2p-credit-backend/internal/domain/offer"
	"p2p-credit-backend/internal/domain/reconciliation"
	"p2p-credit-backend/internal/domain/repayment"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&account.Account{},
		&ledger.Transaction{},
		&offer.Offer{},
		&loan.Loan{},
		&escrow.Hold{},
		&escrow.Event{},
		&repayment.Repayment{},
		&approval.Approval{},
		&reconciliation.Discrepancy{},
	}
}

func gormConfig(log *logrus.Logger) *gorm.Config {
	cfg := &gorm.Config{
		// duplicate keys surface as gorm.ErrDuplicatedKey
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if log != nil {
		level := logger.Warn
		if log.IsLevelEnabled(logrus.DebugLevel) {
			level = logger.Info
		}
		cfg.Logger = logger.New(log, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		})
	} else {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	return cfg
}

func OpenGorm(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn), log)
}

// OpenGormWithDialector opens, tunes the pool and pings.
func OpenGormWithDialector(dial gorm.Dialector, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dial, gormConfig(log))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	if log != nil {
		log.WithField("dialect", dial.Name()).Info("gorm: connected")
	}
	return db, nil
}

// OpenSQLite is used for local runs and tests. SQLite has no row locks, so
// the pool is pinned to one connection and transactions serialize.
func OpenSQLite(path string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
