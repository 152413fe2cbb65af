package main

import (
	"context"
	"errors"
	"os"
	"time"

	"courtsplit/internal/amqp"
	"courtsplit/internal/cli"
	"courtsplit/internal/log"
	"courtsplit/internal/services"
	"courtsplit/internal/worker"
)

// resubscribeDelay is the pause before consuming again after the broker
// closed the delivery channel or refused a subscription.
const resubscribeDelay = 2 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger.Info("Starting courtsplit-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.SettlementQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Replies go through the worker; the service itself publishes nothing.
	svc := services.NewSettlementService(nil, nil, cli.SetupComponentLogger(log.ComponentSettlement))
	w := worker.NewSettlementWorker(svc, amqpClient, cfg.WorkerConcurrency, cli.SetupComponentLogger(log.ComponentWorker))

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)
	go w.RunCacheCleanup(ctx, time.Minute)

	for ctx.Err() == nil {
		deliveries, err := amqpClient.Consume(ctx, cfg.WorkerConcurrency)
		if err != nil {
			logger.Error("Failed to start consuming", "error", err, "queue", cfg.SettlementQueue)
			sleep(ctx, resubscribeDelay)
			continue
		}

		logger.Info("Worker consuming settlement requests",
			"queue", cfg.SettlementQueue,
			"concurrency", cfg.WorkerConcurrency)

		err = w.Run(ctx, deliveries)
		if errors.Is(err, worker.ErrDeliveriesClosed) {
			logger.Warn("Delivery channel closed, resubscribing")
			sleep(ctx, resubscribeDelay)
			continue
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Worker stopped", "error", err)
		}
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
