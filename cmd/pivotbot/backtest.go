package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alejandrodnm/pivotbot/config"
	"github.com/alejandrodnm/pivotbot/internal/adapters/exec"
	"github.com/alejandrodnm/pivotbot/internal/adapters/feed"
	"github.com/alejandrodnm/pivotbot/internal/adapters/notify"
	"github.com/alejandrodnm/pivotbot/internal/adapters/storage"
	"github.com/alejandrodnm/pivotbot/internal/ports"
	"github.com/alejandrodnm/pivotbot/internal/replay"
)

func runBacktest(ctx context.Context, cfg *config.Config, levelClient ports.LevelProvider, executor *exec.Paper, store *storage.SQLiteStorage, notifier *notify.Console) {
	slog.Info("=== BACKTEST MODE: replaying historical bars ===", "dir", cfg.Feed.CSVDir)

	barFeed := feed.NewCSVFeed(cfg.Feed.CSVDir)

	// Un *SQLiteStorage nil dentro de la interfaz no es una interfaz nil.
	var decisionStore ports.DecisionStorage
	if store != nil {
		decisionStore = store
	}

	driver := replay.New(cfg.EngineConfig(), barFeed, levelClient, executor, decisionStore)

	report, err := driver.Run(ctx, cfg.Symbols)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	if err := notifier.Notify(ctx, *report); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	slog.Info("backtest complete",
		"symbols", len(report.Symbols),
		"trades", report.TotalTrades,
		"pnl", report.TotalPnL,
		"final_cash", executor.Cash(),
	)
}
