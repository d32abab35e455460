package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kirillkom/museum-docent/internal/bootstrap"
	"github.com/kirillkom/museum-docent/internal/config"
	"github.com/kirillkom/museum-docent/internal/observability/logging"
)

func main() {
	collections := flag.String("collections", "", "comma-separated collections to rebuild (default: title,description,content)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("indexer", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewIndexer(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var names []string
	for _, name := range strings.Split(*collections, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	start := time.Now()
	if err := app.Indexer.Index(ctx, names...); err != nil {
		logger.Error("index_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
	logger.Info("index_completed", "duration_ms", time.Since(start).Milliseconds())
}
