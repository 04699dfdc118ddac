package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/alejandrodnm/pivotbot/config"
	"github.com/alejandrodnm/pivotbot/internal/adapters/exec"
	"github.com/alejandrodnm/pivotbot/internal/adapters/feed"
	"github.com/alejandrodnm/pivotbot/internal/adapters/notify"
	"github.com/alejandrodnm/pivotbot/internal/adapters/storage"
	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/alejandrodnm/pivotbot/internal/live"
	"github.com/alejandrodnm/pivotbot/internal/ports"
)

func runLive(ctx context.Context, cfg *config.Config, levelClient ports.LevelProvider, executor *exec.Paper, store *storage.SQLiteStorage, notifier *notify.Console) {
	if cfg.Feed.WSURL == "" {
		slog.Error("live mode requires feed.ws_url (or FEED_WS_URL)")
		os.Exit(1)
	}

	slog.Info("=== LIVE MODE (paper fills) ===",
		"ws", cfg.Feed.WSURL,
		"initial_cash", cfg.Paper.InitialCash,
	)

	engCfg := cfg.EngineConfig()
	stream := feed.NewWSStream(cfg.Feed.WSURL, cfg.Symbols, engCfg.SubBarDuration)

	var decisionStore ports.DecisionStorage
	if store != nil {
		decisionStore = store
	}

	driver := live.New(engCfg, stream, levelClient, executor, decisionStore)

	err := driver.Run(ctx, cfg.Symbols)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		slog.Info("live session stopped cleanly")
	default:
		slog.Error("live session exited with error", "err", err)
	}

	printLiveSummary(ctx, cfg, executor, notifier)
}

// printLiveSummary reconstruye un reporte mínimo desde el historial del
// ejecutor. En vivo no hay un reporte de sesión central como en replay.
func printLiveSummary(ctx context.Context, cfg *config.Config, executor *exec.Paper, notifier *notify.Console) {
	report := domain.SessionReport{}
	for _, symbol := range cfg.Symbols {
		pnl := executor.PnL(symbol)
		if pnl == 0 {
			continue
		}
		report.Symbols = append(report.Symbols, domain.SymbolReport{
			Symbol:      symbol,
			RealizedPnL: pnl,
			ExitReasons: make(map[domain.ExitReason]int),
		})
		report.TotalPnL += pnl
	}
	for _, cmd := range executor.History() {
		if cmd.Action == domain.ActionEnter {
			report.TotalTrades++
		}
		if report.From.IsZero() || cmd.At.Before(report.From) {
			report.From = cmd.At
		}
		if cmd.At.After(report.To) {
			report.To = cmd.At
		}
	}

	if err := notifier.Notify(ctx, report); err != nil {
		slog.Warn("notifier error", "err", err)
	}
	slog.Info("session summary", "trades", report.TotalTrades, "pnl", report.TotalPnL, "final_cash", executor.Cash())
}
