package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"budgettracker/internal/amqp"
	"budgettracker/internal/cli"
	"budgettracker/internal/core"
	apphttp "budgettracker/internal/http"
	applog "budgettracker/internal/log"
	"budgettracker/internal/services"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	store := cli.InitSQLite(ctx, logger, cfg.SQLiteDBPath)

	// A nil *amqp.Client must not reach the service as a non-nil interface.
	var publisher services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Event feed unavailable, continuing without it", applog.FieldError, err.Error())
		} else {
			publisher = client
			logger.Info("Event feed enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	months := core.NewMonthResolver(time.Now)
	ledger := services.NewLedgerService(store, publisher, months)
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err.Error())
		}
	}()
	balances := services.NewBalanceCalculator(store, months)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, ledger, balances, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting budgettracker server",
			"port", cfg.Port,
			"database", cfg.SQLiteDBPath,
			"event_feed", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", applog.FieldError, err.Error())
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
