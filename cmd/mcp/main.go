package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/bookshelf-aibot/internal/adapters/mcp"
	"github.com/kirillkom/bookshelf-aibot/internal/bootstrap"
	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/observability/logging"
)

const (
	serviceName = "aibot-mcp"
	version     = "0.1.0"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	core, closeCore, err := bootstrap.NewCore(context.Background(), cfg, nil, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer closeCore()

	if err := mcpadapter.New(core.Books, core.Classifier).ServeStdio(version); err != nil {
		slog.Error("mcp_server_failed", "error", err.Error())
		os.Exit(1)
	}
}
