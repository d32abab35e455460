package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/museum-docent/internal/bootstrap"
	"github.com/kirillkom/museum-docent/internal/config"
	"github.com/kirillkom/museum-docent/internal/infrastructure/queue/nats"
	"github.com/kirillkom/museum-docent/internal/observability/logging"
	"github.com/kirillkom/museum-docent/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.NewWorker(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeReservationRequested(ctx, func(jobCtx context.Context, reservationID string) error {
		if requestedAt, ok := nats.RequestedAt(jobCtx); ok {
			workerMetrics.ObserveQueueLag("worker", time.Since(requestedAt))
		}

		workerMetrics.StartJob()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(jobCtx, reservationID)
		workerMetrics.FinishJob("worker", time.Since(start), err)

		if err == nil {
			logger.Info("reservation_processed", "reservation_id", reservationID, "duration_ms", time.Since(start).Milliseconds())
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
