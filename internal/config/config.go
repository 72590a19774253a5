package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env       string
	AppPort   string
	LogLevel  string
	LogFormat string

	DBDriver      string
	SQLitePath    string
	DBAutoMigrate bool

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs       int
	WebhookDedupeTTL   time.Duration
	RateLimit          int64
	RateLimitPeriod    time.Duration
	WebhookSecret      string
	EscrowExecutor     string
	EscrowGatewayURL   string
	EscrowGatewayToken string
	ExecutorTimeout    time.Duration

	PenaltyDailyRate  decimal.Decimal
	LateFeeRate       decimal.Decimal
	DefaultAfterDays  int
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getdec(k string, d decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(k); v != "" {
		if n, err := decimal.NewFromString(v); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	// .env is optional; real environments inject variables directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	c := &Config{
		Env:       getenv("APP_ENV", "development"),
		AppPort:   getenv("APP_PORT", "8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		DBDriver:      strings.ToLower(getenv("DB_DRIVER", "mysql")),
		SQLitePath:    getenv("SQLITE_PATH", "p2p-credit.db"),
		DBAutoMigrate: getenv("DB_AUTO_MIGRATE", "true") == "true",

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "p2pcredit"),
		MySQLUser: getenv("MYSQL_USER", "p2pcredit"),
		MySQLPass: getenv("MYSQL_PASS", "p2pcredit"),

		RedisAddr: getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:   getint("REDIS_DB", 0),

		IdempTTLSecs:       getint("IDEMPOTENCY_TTL_SECONDS", 300),
		WebhookDedupeTTL:   time.Duration(getint("WEBHOOK_DEDUPE_TTL_SECONDS", 86400)) * time.Second,
		RateLimit:          int64(getint("RATE_LIMIT", 120)),
		RateLimitPeriod:    time.Duration(getint("RATE_LIMIT_PERIOD_SECONDS", 60)) * time.Second,
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		EscrowExecutor:     strings.ToLower(getenv("ESCROW_EXECUTOR", "memory")),
		EscrowGatewayURL:   os.Getenv("ESCROW_GATEWAY_URL"),
		EscrowGatewayToken: os.Getenv("ESCROW_GATEWAY_TOKEN"),
		ExecutorTimeout:    time.Duration(getint("ESCROW_EXECUTOR_TIMEOUT_MS", 5000)) * time.Millisecond,

		PenaltyDailyRate:  getdec("PENALTY_DAILY_RATE", decimal.RequireFromString("0.001")),
		LateFeeRate:       getdec("LATE_FEE_RATE", decimal.RequireFromString("0.02")),
		DefaultAfterDays:  getint("DEFAULT_AFTER_DAYS", 90),
		SweepInterval:     time.Duration(getint("SWEEP_INTERVAL_SECONDS", 3600)) * time.Second,
		ReconcileInterval: time.Duration(getint("RECONCILE_INTERVAL_SECONDS", 900)) * time.Second,
	}
	return c
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.EscrowExecutor {
	case "memory":
		if c.Env == "production" {
			return errors.New("ESCROW_EXECUTOR=memory is not allowed in production")
		}
	case "gateway":
		if c.EscrowGatewayURL == "" {
			return errors.New("ESCROW_EXECUTOR=gateway requires ESCROW_GATEWAY_URL")
		}
	default:
		return fmt.Errorf("unsupported ESCROW_EXECUTOR %q", c.EscrowExecutor)
	}
	if c.Env == "production" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required in production")
	}
	if c.ExecutorTimeout <= 0 {
		return errors.New("ESCROW_EXECUTOR_TIMEOUT_MS must be positive")
	}
	if c.PenaltyDailyRate.IsNegative() || c.LateFeeRate.IsNegative() {
		return errors.New("penalty rates cannot be negative")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// ValidateReconciler rejects the in-memory executor: it keeps no state
// across processes, so every settled hold would read back as missing.
func (c *Config) ValidateReconciler(allowMemory bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.EscrowExecutor == "memory" && !allowMemory {
		return errors.New("reconciler needs ESCROW_EXECUTOR=gateway; the memory executor reports no transfers")
	}
	return nil
}
