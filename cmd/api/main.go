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

	httpadapter "github.com/kirillkom/bookshelf-aibot/internal/adapters/http"
	"github.com/kirillkom/bookshelf-aibot/internal/bootstrap"
	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/logging"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/metrics"
)

const serviceName = "aibot-api"

func main() {
	cfg := config.Load()
	logger, logCloser := logging.NewJSONLoggerWithFile(serviceName, cfg.LogLevel, logging.FileOptions{Path: cfg.LogFile})
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, httpMetrics)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	services := httpadapter.Services{
		Chat:           app.Core.Chat,
		DeepSearch:     app.Core.DeepSearch,
		Documents:      app.Core.Documents,
		Interpretation: app.Core.Interpretation,
		Books:          app.Core.Books,
		Upload:         app.Core.Upload,
	}
	if app.Sessions != nil {
		services.Sessions = app.Sessions
	}

	router := httpadapter.NewRouter(cfg, services, httpMetrics).Handler()
	// No WriteTimeout: SSE and chat replies stream for as long as the model generates.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "local_aibot_enabled", cfg.LocalAIBotEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err.Error())
	}
}
