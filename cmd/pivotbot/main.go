package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/pivotbot/config"
	"github.com/alejandrodnm/pivotbot/internal/adapters/exec"
	"github.com/alejandrodnm/pivotbot/internal/adapters/levels"
	"github.com/alejandrodnm/pivotbot/internal/adapters/notify"
	"github.com/alejandrodnm/pivotbot/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "replay historical bars from csv_dir and print the session report")
	liveMode := flag.Bool("live", false, "connect to the websocket feed and trade on paper in real time")
	noStore := flag.Bool("no-store", false, "skip the decision log database")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full trade table (default: compact 1-line per symbol)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if len(cfg.Symbols) == 0 {
		slog.Error("no symbols configured")
		os.Exit(1)
	}
	if *backtest == *liveMode {
		slog.Error("choose exactly one mode: -backtest or -live")
		os.Exit(1)
	}

	slog.Info("pivotbot starting",
		"config", *configPath,
		"symbols", len(cfg.Symbols),
		"backtest", *backtest,
		"live", *liveMode,
	)

	var store *storage.SQLiteStorage
	if !*noStore {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	levelClient := levels.NewClient(cfg.Levels.BaseURL)
	executor := exec.NewPaper(cfg.Paper.InitialCash)
	notifier := notify.NewConsole(*table)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *backtest {
		runBacktest(ctx, cfg, levelClient, executor, store, notifier)
		return
	}
	runLive(ctx, cfg, levelClient, executor, store, notifier)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
