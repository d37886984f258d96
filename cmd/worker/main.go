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

	"github.com/kirillkom/bookshelf-aibot/internal/bootstrap"
	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/logging"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/metrics"
)

const serviceName = "aibot-worker"

func main() {
	cfg := config.Load()
	logger, logCloser := logging.NewJSONLoggerWithFile(serviceName, cfg.LogLevel, logging.FileOptions{Path: cfg.LogFile})
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer worker.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = worker.Queue.SubscribeSessionEvents(ctx, func(handlerCtx context.Context, event domain.SessionEvent) error {
		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		started := time.Now()
		workerMetrics.StartEvent()
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveEventLag(serviceName, started.Sub(event.OccurredAt))
		}
		err := worker.Recorder.Record(recordCtx, event)
		workerMetrics.FinishEvent(serviceName, string(event.Kind), time.Since(started), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err.Error())
	}
}
