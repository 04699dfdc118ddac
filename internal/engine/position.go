package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/google/uuid"
)

// PositionConfig holds the exit-management thresholds.
type PositionConfig struct {
	Shares float64 // shares per entry

	Partial1TriggerPct float64 // favorable move (%) that takes the first partial
	Partial1Fraction   float64 // fraction of the position closed at partial 1
	Partial2Fraction   float64 // fraction closed when the next target is reached

	TrailingATRMult    float64 // trailing offset = ATR × this
	TrailingFallbackPct float64 // offset (%) when no ATR history exists yet

	Stall           time.Duration // flatten after this long without progress
	StallMinGainPct float64       // the progress bar the position must clear
}

// DefaultPositionConfig returns the production thresholds.
func DefaultPositionConfig() PositionConfig {
	return PositionConfig{
		Shares:              100,
		Partial1TriggerPct:  0.5,
		Partial1Fraction:    0.50,
		Partial2Fraction:    0.25,
		TrailingATRMult:     1.5,
		TrailingFallbackPct: 0.3,
		Stall:               10 * time.Minute,
		StallMinGainPct:     0.10,
	}
}

// Positions manages the open position of one symbol: partial profits,
// break-even move, trailing stop and the stall exit. All timing uses event
// timestamps so replay and live behave identically.
type Positions struct {
	cfg PositionConfig
	pos *domain.Position
}

// NewPositions creates a position manager for one symbol.
func NewPositions(cfg PositionConfig) *Positions {
	return &Positions{cfg: cfg}
}

// Open creates the position for a filled entry. The stop is the pivot that
// defined the breakout, set in the same step as the entry — there is never a
// position without a stop.
func (m *Positions) Open(symbol string, side domain.Side, entryPrice, shares, pivot float64, targets [3]float64, at time.Time) *domain.Position {
	m.pos = &domain.Position{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		Side:           side,
		EntryPrice:     entryPrice,
		Shares:         shares,
		StopPrice:      pivot,
		Targets:        targets,
		EntryTime:      at,
		PivotAtEntry:   pivot,
		State:          domain.PositionOpen,
		PartialsTaken:  make(map[int]bool),
		FractionOpen:   1.0,
		RunningExtreme: entryPrice,
	}
	return m.pos
}

// Current returns the open position, nil when flat.
func (m *Positions) Current() *domain.Position { return m.pos }

// Release hands over a closed position and leaves the manager flat. Returns
// nil while the position is still open.
func (m *Positions) Release() *domain.Position {
	if m.pos == nil || m.pos.State != domain.PositionClosed {
		return nil
	}
	p := m.pos
	m.pos = nil
	return p
}

// OnPrice evaluates the exit rules at the given price and data timestamp.
// atr may be 0 when no candle history exists yet. Returned commands are in
// execution order; a full exit clears the position.
func (m *Positions) OnPrice(price float64, atr float64, at time.Time) []domain.Command {
	p := m.pos
	if p == nil || p.State == domain.PositionClosed {
		return nil
	}

	p.UpdateExtreme(price)

	// Hard stop / trailing stop.
	if p.StopHit(price) {
		reason := domain.ExitStop
		if p.TrailingStop != 0 {
			reason = domain.ExitTrailingStop
		}
		return []domain.Command{m.exit(price, at, reason)}
	}

	// Stall: no meaningful progress after the window → flatten regardless of
	// the stop level. Empirically the dominant loss-limiting rule.
	if at.Sub(p.EntryTime) >= m.cfg.Stall && p.UnrealizedPct(price) < m.cfg.StallMinGainPct && p.State == domain.PositionOpen {
		return []domain.Command{m.exit(price, at, domain.ExitStall)}
	}

	var cmds []domain.Command

	// Partial 1: small favorable move → scale out and move the stop to
	// break-even.
	if p.State == domain.PositionOpen && p.UnrealizedPct(price) >= m.cfg.Partial1TriggerPct {
		cmds = append(cmds, m.partial(price, at, m.cfg.Partial1Fraction, "partial 1 at break-even move"))
		p.State = domain.PositionPartial1
		p.StopPrice = p.EntryPrice
	}

	// Partial 2: the next unreached target → scale out again.
	if p.State == domain.PositionPartial1 {
		if idx, target, ok := m.nextTarget(price); ok && p.Side.Favorable(price, target) >= 0 {
			cmds = append(cmds, m.partial(price, at, m.cfg.Partial2Fraction, fmt.Sprintf("partial 2 at T%d %.2f", idx+1, target)))
			p.State = domain.PositionPartial2
			p.PartialsTaken[idx] = true
		}
	}

	// Once partials are taken, trail the remainder from the running extreme
	// with a volatility-scaled offset. The trailing stop only ever tightens.
	if p.State == domain.PositionPartial1 || p.State == domain.PositionPartial2 {
		offset := atr * m.cfg.TrailingATRMult
		if offset <= 0 {
			offset = price * m.cfg.TrailingFallbackPct / 100
		}
		candidate := p.RunningExtreme - offset
		if p.Side == domain.Short {
			candidate = p.RunningExtreme + offset
		}
		// A wide ATR must not place the trail below the stop already in force;
		// the break-even stop from partial 1 stays the floor.
		if p.Side.Favorable(candidate, p.StopPrice) < 0 {
			candidate = p.StopPrice
		}
		if p.TrailingStop == 0 || p.Side.Favorable(candidate, p.TrailingStop) > 0 {
			p.TrailingStop = candidate
		}
	}

	// Final target reached → close out the remainder.
	if final := p.Targets[len(p.Targets)-1]; final != 0 && p.Side.Favorable(price, final) >= 0 {
		cmds = append(cmds, m.exit(price, at, domain.ExitFinalTarget))
	}

	return cmds
}

// CloseAll flattens at session end.
func (m *Positions) CloseAll(price float64, at time.Time) []domain.Command {
	if m.pos == nil || m.pos.State == domain.PositionClosed {
		return nil
	}
	return []domain.Command{m.exit(price, at, domain.ExitSessionEnd)}
}

// nextTarget returns the first target the partials have not consumed yet.
func (m *Positions) nextTarget(price float64) (int, float64, bool) {
	for i, t := range m.pos.Targets {
		if t == 0 {
			break
		}
		if m.pos.PartialsTaken[i] {
			continue
		}
		return i, t, true
	}
	return 0, 0, false
}

func (m *Positions) partial(price float64, at time.Time, fraction float64, reason string) domain.Command {
	p := m.pos
	if fraction > p.FractionOpen {
		fraction = p.FractionOpen
	}
	p.FractionOpen -= fraction
	return domain.Command{
		ID:       uuid.New().String(),
		Symbol:   p.Symbol,
		Side:     p.Side,
		Action:   domain.ActionPartial,
		Price:    price,
		Shares:   p.Shares * fraction,
		Fraction: fraction,
		Reason:   reason,
		At:       at,
	}
}

func (m *Positions) exit(price float64, at time.Time, reason domain.ExitReason) domain.Command {
	p := m.pos
	p.State = domain.PositionClosed
	p.ExitReason = reason
	p.ExitPrice = price
	p.ExitTime = at

	cmd := domain.Command{
		ID:       uuid.New().String(),
		Symbol:   p.Symbol,
		Side:     p.Side,
		Action:   domain.ActionExit,
		Price:    price,
		Shares:   p.Shares * p.FractionOpen,
		Fraction: p.FractionOpen,
		Reason:   string(reason),
		At:       at,
	}
	p.FractionOpen = 0
	return cmd
}
