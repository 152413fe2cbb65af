package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"courtsplit/internal/backend"
	"courtsplit/internal/cli"
	apphttp "courtsplit/internal/http"
	"courtsplit/internal/log"
	"courtsplit/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	exporter, err := backend.NewFactory(logger).CreateExporter(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}

	// A nil *amqp.Client must not end up inside the Publisher interface.
	var publisher services.Publisher
	amqpClient := backend.ConnectAMQP(cfg, logger)
	if amqpClient != nil {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	svcLogger := cli.SetupComponentLogger(log.ComponentSettlement)
	svc := services.NewSettlementService(exporter, publisher, svcLogger)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             cli.SetupComponentLogger(log.ComponentHTTP),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		ReadyCheck:         backend.AMQPReadyCheck(cfg, amqpClient),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting courtsplit server",
			"port", cfg.Port,
			"export_backend", cfg.ExportBackend,
			"export_enabled", svc.ExportEnabled(),
			"amqp_enabled", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	m := srv.Metrics()
	logger.Info("Server stopped gracefully",
		"requests", m.Requests,
		"server_errors", m.ServerErrors,
		"rate_limited", m.RateLimited,
		"suspicious_requests", m.SuspiciousRequests)
}
