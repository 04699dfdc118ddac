package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/markcheno/go-talib"
)

// Update is everything one feed event produced: orders for the executor,
// decision records and pivot events for the audit log, and positions that
// fully closed during the event.
type Update struct {
	Commands        []domain.Command
	Decisions       []*domain.DecisionRecord
	PivotEvents     []domain.PivotUpdateEvent
	ClosedPositions []*domain.Position
}

func (u *Update) merge(o Update) {
	u.Commands = append(u.Commands, o.Commands...)
	u.Decisions = append(u.Decisions, o.Decisions...)
	u.PivotEvents = append(u.PivotEvents, o.PivotEvents...)
	u.ClosedPositions = append(u.ClosedPositions, o.ClosedPositions...)
}

// Monitor owns everything for one symbol: the bar history, both side state
// machines, the pivot and position managers. Monitors share nothing mutable,
// so the live driver runs one goroutine per symbol without locking.
//
// Two-speed design: pivot crossing is checked eagerly on every tick/sub-bar;
// classification, CVD confirmation and filters only run at candle boundaries.
type Monitor struct {
	cfg    Config
	symbol string

	agg       *Aggregator
	cvd       *CVD
	pivots    *Pivots
	positions *Positions
	machines  map[domain.Side]*Breakout

	bars    []domain.Bar
	ticks   []domain.Tick // buffered trade prints for the current candle
	started bool
}

// NewMonitor builds a monitor from the externally provided level sets for one
// symbol. Symbols with levels for only one side simply never monitor the
// other.
func NewMonitor(cfg Config, symbol string, levels []domain.LevelSet) (*Monitor, error) {
	agg, err := NewAggregator(cfg.CandleDuration, cfg.SubBarDuration)
	if err != nil {
		return nil, fmt.Errorf("engine.NewMonitor: %w", err)
	}

	m := &Monitor{
		cfg:       cfg,
		symbol:    symbol,
		agg:       agg,
		cvd:       NewCVD(cfg.DojiThresholdPct),
		pivots:    NewPivots(cfg.Pivot),
		positions: NewPositions(cfg.Position),
		machines:  make(map[domain.Side]*Breakout),
	}

	filters := NewPipeline(cfg.Filter)
	for _, lv := range levels {
		if lv.Symbol != symbol {
			return nil, fmt.Errorf("engine.NewMonitor: level for %q given to monitor of %q", lv.Symbol, symbol)
		}
		state := &domain.SymbolSideState{
			Symbol:      symbol,
			Side:        lv.Side,
			Pivot:       lv.Pivot,
			Targets:     lv.Targets,
			State:       domain.StateMonitoring,
			MaxAttempts: cfg.MaxAttempts,
		}
		m.machines[lv.Side] = NewBreakout(cfg.Breakout, state, filters, m.cvd)
	}
	if len(m.machines) == 0 {
		return nil, fmt.Errorf("engine.NewMonitor: no levels for %q", symbol)
	}
	return m, nil
}

// Symbol returns the monitored symbol.
func (m *Monitor) Symbol() string { return m.symbol }

// sideOrder fixes the evaluation order so the decision log of a replay is
// byte-stable: map iteration would shuffle Decisions and PivotEvents between
// runs of identical input.
var sideOrder = [...]domain.Side{domain.Long, domain.Short}

// ordered returns the side machines in fixed order, skipping absent sides.
func (m *Monitor) ordered() []*Breakout {
	out := make([]*Breakout, 0, len(m.machines))
	for _, side := range sideOrder {
		if b, ok := m.machines[side]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Sides returns the state of each monitored side.
func (m *Monitor) Sides() map[domain.Side]*domain.SymbolSideState {
	out := make(map[domain.Side]*domain.SymbolSideState, len(m.machines))
	for side, b := range m.machines {
		out[side] = b.State()
	}
	return out
}

// OnTick handles one live trade print: eager pivot-cross detection plus
// buffering for the candle's CVD window. Candle-boundary work waits for the
// sub-bar that closes the candle.
func (m *Monitor) OnTick(t domain.Tick) Update {
	var up Update
	m.ticks = append(m.ticks, t)

	for _, b := range m.ordered() {
		if b.OnTick(t.Price, t.Time) {
			slog.Debug("breakout detected",
				"symbol", m.symbol,
				"side", b.State().Side,
				"price", t.Price,
				"pivot", b.State().Pivot,
			)
		}
	}
	return up
}

// OnBar consumes one sub-bar from the feed. This is the single entry point
// both drivers share: the replay loop feeds historical sub-bars, the live
// driver feeds sub-bars assembled by the exchange.
func (m *Monitor) OnBar(bar domain.Bar) Update {
	var up Update

	m.bars = append(m.bars, bar)
	i := len(m.bars) - 1
	at := bar.Start.Add(m.cfg.SubBarDuration)

	if !m.started {
		m.started = true
		for _, b := range m.ordered() {
			if ev := m.pivots.ApplySessionGap(b.State(), bar.Open, bar.Start); ev != nil {
				up.PivotEvents = append(up.PivotEvents, *ev)
			}
		}
	}

	// Eager crossing on the bar extremes: highs arm LONG, lows arm SHORT.
	for _, b := range m.ordered() {
		price := bar.High
		if b.State().Side == domain.Short {
			price = bar.Low
		}
		b.OnTick(price, bar.Start)
	}

	// Pivot tracking: session extremes, target progression.
	for _, b := range m.ordered() {
		price := bar.High
		if b.State().Side == domain.Short {
			price = bar.Low
		}
		if ev := m.pivots.OnPrice(b.State(), price, at); ev != nil {
			up.PivotEvents = append(up.PivotEvents, *ev)
			slog.Info("pivot updated",
				"symbol", m.symbol,
				"side", b.State().Side,
				"trigger", ev.Trigger,
				"old", ev.OldPivot,
				"new", ev.NewPivot,
			)
		}
	}

	// Exit management runs every sub-bar: adverse extreme first (stops fill
	// before profit logic on the same bar), then the favorable extreme.
	if pos := m.positions.Current(); pos != nil {
		adverse, favorable := bar.Low, bar.High
		if pos.Side == domain.Short {
			adverse, favorable = bar.High, bar.Low
		}
		atr := m.currentATR(i)
		up.Commands = append(up.Commands, m.positions.OnPrice(adverse, atr, at)...)
		if m.positions.Current() != nil && m.positions.Current().State != domain.PositionClosed {
			up.Commands = append(up.Commands, m.positions.OnPrice(favorable, atr, at)...)
		}
		m.collectClosed(&up, at)
	}

	// Candle boundary.
	if candle, ok := m.agg.CandleAt(m.bars, i); ok {
		up.merge(m.onCandleClose(candle, i, at))
	}

	return up
}

// EndSession flattens any open position at the last known price.
func (m *Monitor) EndSession(price float64, at time.Time) Update {
	var up Update
	up.Commands = append(up.Commands, m.positions.CloseAll(price, at)...)
	m.collectClosed(&up, at)
	return up
}

// onCandleClose runs classification and confirmation for both sides on the
// freshly closed decision candle.
func (m *Monitor) onCandleClose(candle domain.Candle, i int, at time.Time) Update {
	var up Update

	// Volume average over the candles BEFORE this one, never sub-bars.
	volumeRatio := 0.0
	if avg, ok := m.agg.AverageVolume(m.bars, i-m.agg.SubBarsPerCandle(), m.cfg.VolumeLookback); ok && avg > 0 {
		volumeRatio = candle.Volume / avg
	}

	highs, lows, closes := m.agg.Closes(m.bars, i)
	in := CandleClose{
		Candle:      candle,
		End:         at,
		VolumeRatio: volumeRatio,
		Ticks:       m.candleTicks(candle.Start, at),
		Highs:       highs,
		Lows:        lows,
		Closes:      closes,
	}

	for _, b := range m.ordered() {
		side := b.State().Side
		rec, cmd := b.OnCandleClose(in)
		if rec != nil {
			up.Decisions = append(up.Decisions, rec)
			slog.Debug("candle evaluated",
				"symbol", m.symbol,
				"side", side,
				"state", rec.State,
				"reason", rec.Reason,
			)
		}
		if cmd == nil {
			continue
		}
		if m.positions.Current() != nil {
			// One position per symbol. The competing side goes back to
			// monitoring without consuming the entry.
			slog.Warn("entry skipped, position already open", "symbol", m.symbol, "side", side)
			b.State().Attempts--
			b.OnPositionClosed()
			continue
		}
		cmd.Shares = m.cfg.Position.Shares
		up.Commands = append(up.Commands, *cmd)
		m.positions.Open(m.symbol, side, cmd.Price, cmd.Shares, b.State().Pivot, b.State().Targets, at)
		slog.Info("entered position",
			"symbol", m.symbol,
			"side", side,
			"price", cmd.Price,
			"attempt", b.State().Attempts,
		)
	}

	m.dropTicksBefore(at)
	return up
}

// collectClosed releases a closed position, re-arms its side machine and
// applies failure recovery on losing exits.
func (m *Monitor) collectClosed(up *Update, at time.Time) {
	closed := m.positions.Release()
	if closed == nil {
		return
	}
	up.ClosedPositions = append(up.ClosedPositions, closed)

	b, ok := m.machines[closed.Side]
	if !ok {
		return
	}
	b.OnPositionClosed()

	if closed.Side.Favorable(closed.ExitPrice, closed.EntryPrice) < 0 {
		if ev := m.pivots.OnLosingExit(b.State(), at); ev != nil {
			up.PivotEvents = append(up.PivotEvents, *ev)
			b.Reenable()
		}
	}

	slog.Info("position closed",
		"symbol", m.symbol,
		"side", closed.Side,
		"reason", closed.ExitReason,
		"entry", closed.EntryPrice,
		"exit", closed.ExitPrice,
	)
}

// currentATR computes the ATR over closed candles for the trailing stop.
func (m *Monitor) currentATR(i int) float64 {
	highs, lows, closes := m.agg.Closes(m.bars, i)
	period := m.cfg.Filter.ATRPeriod
	if len(closes) <= period {
		return 0
	}
	atr := talib.Atr(highs, lows, closes, period)
	return atr[len(atr)-1]
}

// candleTicks returns the buffered ticks inside [start, end).
func (m *Monitor) candleTicks(start, end time.Time) []domain.Tick {
	var out []domain.Tick
	for _, t := range m.ticks {
		if !t.Time.Before(start) && t.Time.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

// dropTicksBefore trims the tick buffer once a candle has been evaluated.
func (m *Monitor) dropTicksBefore(cutoff time.Time) {
	kept := m.ticks[:0]
	for _, t := range m.ticks {
		if !t.Time.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	m.ticks = kept
}
