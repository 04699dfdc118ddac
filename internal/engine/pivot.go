package engine

import (
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// PivotConfig holds the pivot-adjustment thresholds.
type PivotConfig struct {
	// FailureRecoveryMinMovePct is the minimum favorable move (%) of the
	// session extreme past the pivot before a losing exit re-arms the side.
	FailureRecoveryMinMovePct float64
}

// DefaultPivotConfig returns the production thresholds.
func DefaultPivotConfig() PivotConfig {
	return PivotConfig{FailureRecoveryMinMovePct: 1.0}
}

// Pivots owns the active entry level for one (symbol, side). Every update is
// strictly favorable — the bar for entry only ever tightens — and emits a
// PivotUpdateEvent for the audit trail.
type Pivots struct {
	cfg PivotConfig
}

// NewPivots creates a pivot manager.
func NewPivots(cfg PivotConfig) *Pivots {
	return &Pivots{cfg: cfg}
}

// ApplySessionGap handles a session-start gap: if price already opened beyond
// the pivot, the session extreme-so-far becomes the new pivot. Returns nil
// when no adjustment applies.
func (p *Pivots) ApplySessionGap(s *domain.SymbolSideState, price float64, at time.Time) *domain.PivotUpdateEvent {
	s.SessionExtreme = price
	if !s.Crossed(price) {
		return nil
	}
	return p.update(s, price, domain.TriggerSessionGap, at)
}

// TrackExtreme advances the session extreme for the side.
func (p *Pivots) TrackExtreme(s *domain.SymbolSideState, price float64) {
	if s.SessionExtreme == 0 || s.Side.Favorable(price, s.SessionExtreme) > 0 {
		s.SessionExtreme = price
	}
}

// OnPrice applies target progression: once price reaches the tracked target,
// the target is promoted to pivot and the next target becomes current. Only
// fires while the side is actively monitoring.
func (p *Pivots) OnPrice(s *domain.SymbolSideState, price float64, at time.Time) *domain.PivotUpdateEvent {
	p.TrackExtreme(s, price)

	if !monitoringActive(s.State) {
		return nil
	}
	target, ok := s.NextTargetPrice()
	if !ok {
		return nil
	}
	if s.Side.Favorable(price, target) < 0 {
		return nil
	}

	ev := p.update(s, target, domain.TriggerTargetHit, at)
	s.NextTarget++
	return ev
}

// OnLosingExit applies failure recovery: after a losing exit, if the session
// extreme has moved past the pivot by the minimum percentage, the extreme
// becomes the new pivot and the attempt counter resets, permitting a fresh
// cycle of attempts. A side DISABLED by the attempt cap is eligible — that is
// the case recovery exists for — so only ENTERED is excluded here.
func (p *Pivots) OnLosingExit(s *domain.SymbolSideState, at time.Time) *domain.PivotUpdateEvent {
	if s.State == domain.StateEntered {
		return nil
	}
	if s.Pivot == 0 || s.SessionExtreme == 0 {
		return nil
	}
	movePct := s.Side.Favorable(s.SessionExtreme, s.Pivot) / s.Pivot * 100
	if movePct < p.cfg.FailureRecoveryMinMovePct {
		return nil
	}

	ev := p.update(s, s.SessionExtreme, domain.TriggerFailureRecovery, at)
	if ev != nil {
		s.Attempts = 0
	}
	return ev
}

// update moves the pivot only in the favorable direction; an unfavorable
// candidate is dropped, preserving pivot monotonicity within the session.
func (p *Pivots) update(s *domain.SymbolSideState, newPivot float64, trigger domain.PivotTrigger, at time.Time) *domain.PivotUpdateEvent {
	if s.Side.Favorable(newPivot, s.Pivot) <= 0 {
		return nil
	}
	ev := &domain.PivotUpdateEvent{
		Symbol:   s.Symbol,
		Side:     s.Side,
		OldPivot: s.Pivot,
		NewPivot: newPivot,
		Trigger:  trigger,
		At:       at,
	}
	s.Pivot = newPivot
	return ev
}

func monitoringActive(st domain.MonitorState) bool {
	return st != domain.StateDisabled && st != domain.StateEntered
}
