package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"splitter/internal/amqp"
	"splitter/internal/cache"
	"splitter/internal/cli"
	"splitter/internal/core"
	apphttp "splitter/internal/http"
	"splitter/internal/log"
	"splitter/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, os.Stdout)
	logger.Info("Starting splitter-server", log.FieldOperation, log.OpStartup)

	cacheLogger := logger.WithComponent(log.ComponentCache)
	sessions := cache.NewLRUCache[core.Session](cfg.SessionCacheSize, cfg.SessionTTL,
		cache.WithEvictHook(func(key string, reason cache.EvictReason) {
			cacheLogger.Debug("Split session evicted", log.FieldSessionID, key, "reason", string(reason))
		}))
	manager := cache.NewManager(logger)
	manager.Register(sessions)

	// Settlement events are optional
	var publisher services.SettlementPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		publisher = client
	} else {
		logger.Info("AMQP_URL not set, settlement events disabled")
	}

	svc := services.NewSplitService(sessions, publisher, cfg.SettleTolerance, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close split service", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             logger,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "addr", srv.Addr, "events", cfg.EventsEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		manager.Run(gctx, 10*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		manager.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
