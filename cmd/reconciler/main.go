// Command reconciler runs one reconciliation pass and prints the report as
// JSON. Exit status 2 means at least one loan did not reconcile.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"p2p-credit-backend/internal/app"
	"p2p-credit-backend/internal/config"
	"p2p-credit-backend/internal/logger"
)

func main() {
	loanID := flag.String("loan", "", "reconcile a single loan instead of the whole portfolio")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	allowMemory := flag.Bool("allow-memory", false, "run against the in-memory executor (every settled hold is flagged)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, "json")
	log.SetOutput(os.Stderr)
	if err := cfg.ValidateReconciler(*allowMemory); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if cfg.EscrowExecutor == "memory" {
		log.Warn("reconciler: memory executor in use, executor state checks will fail")
	}
	gdb, err := app.OpenDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	svc := app.NewServices(cfg, gdb, app.NewExecutor(cfg), log, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	code := 0
	if *loanID != "" {
		report, err := svc.Reconciliation.Reconcile(ctx, *loanID)
		if err != nil {
			log.WithError(err).Fatal("reconcile")
		}
		_ = out.Encode(report)
		if !report.Matched {
			code = 2
		}
	} else {
		report, err := svc.Reconciliation.ReconcilePortfolio(ctx)
		if err != nil {
			log.WithError(err).Fatal("reconcile portfolio")
		}
		_ = out.Encode(report)
		if report.Reconciled < report.Total {
			code = 2
		}
	}
	cancel()
	os.Exit(code)
}
