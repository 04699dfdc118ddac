package replay

// replay.go — backtest determinista: el mismo state machine que el modo live,
// alimentado bar a bar en un loop síncrono de un solo thread. No existen
// timers de reloj; todo timeout se computa desde los timestamps de los bars,
// así que secuencias idénticas de bars producen siempre decisiones idénticas.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/alejandrodnm/pivotbot/internal/engine"
	"github.com/alejandrodnm/pivotbot/internal/ports"
)

// Driver ejecuta el backtest sobre el histórico de sub-bars.
type Driver struct {
	cfg    engine.Config
	feed   ports.BarFeed
	levels ports.LevelProvider
	exec   ports.OrderExecutor
	store  ports.DecisionStorage // puede ser nil
}

// New crea un Driver con las dependencias inyectadas.
func New(cfg engine.Config, feed ports.BarFeed, levels ports.LevelProvider, exec ports.OrderExecutor, store ports.DecisionStorage) *Driver {
	return &Driver{cfg: cfg, feed: feed, levels: levels, exec: exec, store: store}
}

// Run procesa todos los símbolos secuencialmente y devuelve el reporte de la
// sesión simulada.
func (d *Driver) Run(ctx context.Context, symbols []string) (*domain.SessionReport, error) {
	levelsBySymbol, err := d.levels.FetchLevels(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("replay.Run: fetch levels: %w", err)
	}

	report := &domain.SessionReport{}
	for _, symbol := range symbols {
		levels, ok := levelsBySymbol[symbol]
		if !ok || len(levels) == 0 {
			slog.Warn("replay: no levels for symbol, skipping", "symbol", symbol)
			continue
		}

		sr, start, end, err := d.runSymbol(ctx, symbol, levels)
		if err != nil {
			slog.Warn("replay: symbol failed", "symbol", symbol, "err", err)
			continue
		}
		report.Symbols = append(report.Symbols, sr)
		report.TotalPnL += sr.RealizedPnL
		report.TotalTrades += len(sr.Positions)

		if report.From.IsZero() || start.Before(report.From) {
			report.From = start
		}
		if end.After(report.To) {
			report.To = end
		}
	}
	return report, nil
}

// runSymbol reproduce la sesión de un símbolo bar a bar.
func (d *Driver) runSymbol(ctx context.Context, symbol string, levels []domain.LevelSet) (domain.SymbolReport, time.Time, time.Time, error) {
	sr := domain.SymbolReport{
		Symbol:      symbol,
		ExitReasons: make(map[domain.ExitReason]int),
	}

	bars, err := d.feed.Bars(ctx, symbol)
	if err != nil {
		return sr, time.Time{}, time.Time{}, fmt.Errorf("replay.runSymbol: bars: %w", err)
	}
	if len(bars) == 0 {
		return sr, time.Time{}, time.Time{}, fmt.Errorf("replay.runSymbol: no bars for %q", symbol)
	}
	start := bars[0].Start
	sessionEnd := bars[len(bars)-1].Start.Add(d.cfg.SubBarDuration)

	monitor, err := engine.NewMonitor(d.cfg, symbol, levels)
	if err != nil {
		return sr, start, sessionEnd, err
	}

	acct := newAccountant()
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return sr, start, sessionEnd, err
		}
		up := monitor.OnBar(bar)
		if err := d.apply(ctx, &sr, acct, up); err != nil {
			return sr, start, sessionEnd, err
		}
	}

	last := bars[len(bars)-1]
	end := monitor.EndSession(last.Close, sessionEnd)
	if err := d.apply(ctx, &sr, acct, end); err != nil {
		return sr, start, sessionEnd, err
	}

	sr.RealizedPnL = acct.pnl
	return sr, start, sessionEnd, nil
}

// apply ejecuta los comandos, persiste registros y acumula el reporte.
func (d *Driver) apply(ctx context.Context, sr *domain.SymbolReport, acct *accountant, up engine.Update) error {
	for _, cmd := range up.Commands {
		if err := d.exec.Execute(ctx, cmd); err != nil {
			return fmt.Errorf("replay.apply: execute %s: %w", cmd.Action, err)
		}
		acct.onCommand(cmd)
	}

	sr.Decisions += len(up.Decisions)
	for _, rec := range up.Decisions {
		if rec.Entered {
			sr.Entries++
		}
	}

	for _, pos := range up.ClosedPositions {
		sr.Positions = append(sr.Positions, pos)
		sr.ExitReasons[pos.ExitReason]++
		if pos.Side.Favorable(pos.ExitPrice, pos.EntryPrice) >= 0 {
			sr.Wins++
		} else {
			sr.Losses++
		}
	}

	if d.store != nil {
		if len(up.Decisions) > 0 {
			if err := d.store.SaveDecisions(ctx, up.Decisions); err != nil {
				slog.Warn("replay: storage error", "err", err)
			}
		}
		if len(up.PivotEvents) > 0 {
			if err := d.store.SavePivotEvents(ctx, up.PivotEvents); err != nil {
				slog.Warn("replay: storage error", "err", err)
			}
		}
		for _, pos := range up.ClosedPositions {
			if err := d.store.SavePosition(ctx, pos); err != nil {
				slog.Warn("replay: storage error", "err", err)
			}
		}
	}
	return nil
}

// accountant acumula el PnL realizado a partir del stream de comandos.
type accountant struct {
	entryPrice float64
	side       domain.Side
	pnl        float64
}

func newAccountant() *accountant { return &accountant{} }

func (a *accountant) onCommand(cmd domain.Command) {
	switch cmd.Action {
	case domain.ActionEnter:
		a.entryPrice = cmd.Price
		a.side = cmd.Side
	case domain.ActionPartial, domain.ActionExit:
		a.pnl += a.side.Favorable(cmd.Price, a.entryPrice) * cmd.Shares
	}
}
