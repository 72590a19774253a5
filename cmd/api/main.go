package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"p2p-credit-backend/internal/app"
	"p2p-credit-backend/internal/config"
	"p2p-credit-backend/internal/infrastructure/cache"
	"p2p-credit-backend/internal/logger"
	"p2p-credit-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET is empty, escrow webhooks are not verified")
	}

	gdb, err := app.OpenDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Fatal("redis")
	}
	defer rdb.Close()

	svc := app.NewServices(cfg, gdb, app.NewExecutor(cfg), log, nil)
	e, err := app.NewServer(cfg, svc, rdb, log)
	if err != nil {
		log.WithError(err).Fatal("server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := worker.NewRunner(log)
	jobs.Start(ctx, svc.Jobs(cfg, log)...)

	go func() {
		addr := ":" + cfg.AppPort
		log.WithFields(logrus.Fields{"addr": addr, "executor": cfg.EscrowExecutor, "db": cfg.DBDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	jobs.Wait()
}
