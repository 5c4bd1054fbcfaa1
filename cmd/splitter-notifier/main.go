package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"splitter/internal/amqp"
	"splitter/internal/cli"
	"splitter/internal/log"
	"splitter/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	// Notices go to stdout, logs to stderr
	logger := cli.SetupLogger(cfg, os.Stderr)

	if !cfg.EventsEnabled() {
		cli.Fatal(logger, "Notifier needs a broker", errors.New("AMQP_URL is not set"))
	}
	logger.Info("Starting splitter-notifier",
		log.FieldOperation, log.OpStartup,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	notifier := worker.NewNotifyWorker(os.Stdout, logger)

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqp.ConsumeWithRetry(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, notifier.HandleSettlement, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notifier stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Notifier stopped",
		log.FieldOperation, log.OpShutdown,
		"delivered", notifier.Delivered())
}
