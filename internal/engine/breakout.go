package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/google/uuid"
)

// BreakoutConfig holds the state machine thresholds. All windows are measured
// against data timestamps, never wall clock, so live and replay runs of the
// same bars make identical decisions.
type BreakoutConfig struct {
	MinInitialVolumeRatio float64 // below this on the breakout candle → FAILED
	MomentumVolumeRatio   float64 // at/above this plus candle size → MOMENTUM
	MomentumCandleMinPct  float64

	PullbackVolumeRatio float64 // re-break thresholds for the retest path
	PullbackCandleMinPct float64
	RetestTolerancePct  float64       // how close to the pivot counts as a retest
	RetestMaxAge        time.Duration // retests older than this are stale
	SustainedHold       time.Duration // hold duration for the sustained path
	HoldTolerancePct    float64       // band around the pivot the hold may not breach
	WeakWindow          time.Duration // total time budget for WEAK_TRACKING

	CVDSpikePct       float64 // aggressive path: initial spike...
	CVDConfirmPct     float64 // ...then confirmation on the next candle
	CVDSustainedPct   float64 // sustained path: per-candle minimum...
	CVDSustainedCount int     // ...for this many consecutive candles
	CVDTimeout        time.Duration
	UseCVD            bool // false routes MOMENTUM straight to the entry filters
}

// DefaultBreakoutConfig returns the production thresholds.
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		MinInitialVolumeRatio: 1.0,
		MomentumVolumeRatio:   2.0,
		MomentumCandleMinPct:  0.30,
		PullbackVolumeRatio:   1.5,
		PullbackCandleMinPct:  0.20,
		RetestTolerancePct:    0.10,
		RetestMaxAge:          30 * time.Minute,
		SustainedHold:         5 * time.Minute,
		HoldTolerancePct:      0.15,
		WeakWindow:            30 * time.Minute,
		CVDSpikePct:           20,
		CVDConfirmPct:         10,
		CVDSustainedPct:       8,
		CVDSustainedCount:     2,
		CVDTimeout:            10 * time.Minute,
		UseCVD:                true,
	}
}

// CandleClose carries everything a candle-boundary evaluation needs. Ticks,
// when present, must span exactly the candle's window; with no ticks the CVD
// engine falls back to the candle's own OHLCV.
type CandleClose struct {
	Candle      domain.Candle
	End         time.Time // close timestamp of the candle
	VolumeRatio float64   // candleVolume / averageVolume; 0 when no history yet
	Ticks       []domain.Tick
	// Closed-candle history, oldest first, for the choppiness filter.
	Highs, Lows, Closes []float64
}

// Breakout is the per-(symbol, side) breakout state machine. Pivot crossing is
// evaluated eagerly on every tick; classification, CVD confirmation and the
// filter pipeline run only at candle boundaries.
type Breakout struct {
	cfg     BreakoutConfig
	state   *domain.SymbolSideState
	filters *Pipeline
	cvd     *CVD

	// WEAK_TRACKING bookkeeping.
	pulledBack bool
	holdSince  time.Time

	// CVD_MONITORING bookkeeping.
	cvdStart  time.Time
	cvdSpiked bool
	cvdStreak int
}

// NewBreakout wires a state machine around an existing SymbolSideState.
func NewBreakout(cfg BreakoutConfig, state *domain.SymbolSideState, filters *Pipeline, cvd *CVD) *Breakout {
	return &Breakout{cfg: cfg, state: state, filters: filters, cvd: cvd}
}

// State exposes the underlying side state.
func (b *Breakout) State() *domain.SymbolSideState { return b.state }

// OnTick performs the eager intrabar pivot-cross check. Returns true on the
// tick that flips MONITORING into BREAKOUT_DETECTED.
func (b *Breakout) OnTick(price float64, at time.Time) bool {
	if b.state.State != domain.StateMonitoring {
		return false
	}
	if !b.state.Crossed(price) {
		return false
	}
	b.state.State = domain.StateBreakoutDetected
	b.state.BreakoutDetectedAt = at
	b.state.BreakoutPrice = price
	return true
}

// OnCandleClose advances the machine at a candle boundary. It returns a
// DecisionRecord when an evaluation happened (nil for quiet candles) and an
// entry Command when every confirmation and filter passed.
func (b *Breakout) OnCandleClose(in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	switch b.state.State {
	case domain.StateBreakoutDetected:
		return b.classify(in)
	case domain.StateWeakTracking:
		return b.trackWeak(in)
	case domain.StateCVDMonitoring:
		return b.monitorCVD(in)
	default:
		return nil, nil
	}
}

// OnPositionClosed re-arms the side after the position from its last entry is
// gone. The side stays DISABLED once the attempt cap is spent; a later
// FAILURE_RECOVERY pivot update resets the counter and re-enables it.
func (b *Breakout) OnPositionClosed() {
	if b.state.Attempts >= b.state.MaxAttempts {
		b.state.State = domain.StateDisabled
		return
	}
	b.reset()
}

// Reenable puts a DISABLED side back to MONITORING after a pivot update
// restored its attempt budget.
func (b *Breakout) Reenable() {
	if b.state.State == domain.StateDisabled && b.state.Attempts < b.state.MaxAttempts {
		b.reset()
	}
}

// classify runs once the breakout candle closes: reverted → failed, then the
// volume/size classification routes to WEAK_TRACKING, CVD_MONITORING or the
// entry filters. Classification is a pure function of the closed candle, so
// re-evaluating the same inputs always yields the same verdict.
func (b *Breakout) classify(in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	rec := b.newRecord(in)

	if b.state.Reverted(in.Candle.Close) {
		rec.Classification = domain.ClassFailed
		rec.Reason = fmt.Sprintf("close %.2f reverted across pivot %.2f", in.Candle.Close, b.state.Pivot)
		b.reset()
		return rec, nil
	}

	rec.Classification = Classify(b.cfg, in.VolumeRatio, in.Candle.BodyPct())
	switch rec.Classification {
	case domain.ClassFailed:
		rec.Reason = fmt.Sprintf("volume ratio %.2fx below %.2fx", in.VolumeRatio, b.cfg.MinInitialVolumeRatio)
		b.reset()
		return rec, nil
	case domain.ClassMomentum:
		rec.Reason = "momentum breakout"
		return b.afterConfirmation(rec, domain.PathMomentum, in)
	default:
		rec.Reason = "weak breakout, tracking secondary confirmation"
		b.state.State = domain.StateWeakTracking
		b.pulledBack = false
		b.holdSince = b.state.BreakoutDetectedAt
		return rec, nil
	}
}

// Classify applies the volume/size thresholds to a closed breakout candle.
// Exposed as a function so the classification is trivially idempotent.
func Classify(cfg BreakoutConfig, volumeRatio, bodyPct float64) domain.Classification {
	if volumeRatio > 0 && volumeRatio < cfg.MinInitialVolumeRatio {
		return domain.ClassFailed
	}
	if volumeRatio >= cfg.MomentumVolumeRatio && bodyPct >= cfg.MomentumCandleMinPct {
		return domain.ClassMomentum
	}
	return domain.ClassWeak
}

// trackWeak runs the three secondary confirmation paths. Each one alone is
// sufficient; failing all of them inside the window resets to MONITORING.
func (b *Breakout) trackWeak(in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	s := b.state
	age := in.End.Sub(s.BreakoutDetectedAt)

	if age > b.cfg.WeakWindow {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("weak tracking expired after %s with no confirmation", age.Round(time.Second))
		b.reset()
		return rec, nil
	}

	// A close beyond the tolerance band on the wrong side of the pivot means
	// the breakout is gone, not merely retesting.
	if lostPct := s.Side.Favorable(s.Pivot, in.Candle.Close) / s.Pivot * 100; lostPct > b.cfg.RetestTolerancePct {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("close %.2f lost pivot %.2f by %.2f%%", in.Candle.Close, s.Pivot, lostPct)
		b.reset()
		return rec, nil
	}

	// Path (c): delayed momentum — a later candle meets the MOMENTUM bar.
	if in.VolumeRatio >= b.cfg.MomentumVolumeRatio && in.Candle.BodyPct() >= b.cfg.MomentumCandleMinPct {
		rec := b.newRecord(in)
		rec.Reason = "delayed momentum candle"
		return b.afterConfirmation(rec, domain.PathDelayedMomentum, in)
	}

	// Path (a): pullback/retest — price returned to the pivot's tolerance band
	// and then re-broke with volume, inside the staleness window.
	touched := b.touchedPivot(in.Candle)
	if b.pulledBack && !touched && s.Crossed(in.Candle.Close) &&
		in.VolumeRatio >= b.cfg.PullbackVolumeRatio && in.Candle.BodyPct() >= b.cfg.PullbackCandleMinPct {
		if age <= b.cfg.RetestMaxAge {
			rec := b.newRecord(in)
			rec.Reason = "pullback retest re-break"
			return b.afterConfirmation(rec, domain.PathPullbackRetest, in)
		}
	}
	if touched {
		b.pulledBack = true
		// Touching the band breaks the sustained-hold clock.
		b.holdSince = in.End
	}

	// Path (b): sustained hold — the full candle stayed beyond the band.
	if !touched && !b.holdSince.IsZero() && in.End.Sub(b.holdSince) >= b.cfg.SustainedHold {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("held beyond pivot for %s", in.End.Sub(b.holdSince).Round(time.Second))
		return b.afterConfirmation(rec, domain.PathSustainedHold, in)
	}

	return nil, nil
}

// touchedPivot reports whether the candle traded inside the pivot tolerance
// band (the retest/hold band).
func (b *Breakout) touchedPivot(c domain.Candle) bool {
	s := b.state
	tol := s.Pivot * b.cfg.HoldTolerancePct / 100
	if s.Side == domain.Long {
		return c.Low <= s.Pivot+tol
	}
	return c.High >= s.Pivot-tol
}

// monitorCVD evaluates order-flow confirmation on each candle close. Two
// independent paths: an aggressive spike-then-confirm pair, and a sustained
// run of moderate imbalance. Misaligned signals block only that candle's
// evidence — counters survive.
func (b *Breakout) monitorCVD(in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	s := b.state

	if in.End.Sub(b.cvdStart) > b.cfg.CVDTimeout {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("cvd timeout after %s", in.End.Sub(b.cvdStart).Round(time.Second))
		b.reset()
		return rec, nil
	}

	var result domain.CVDResult
	if len(in.Ticks) > 0 {
		r, err := b.cvd.FromTicks(in.Ticks)
		if err != nil {
			result = b.cvd.FromCandle(in.Candle)
		} else {
			result = r
		}
	} else {
		// Data gap: approximate from OHLCV instead of failing the evaluation.
		result = b.cvd.FromCandle(in.Candle)
	}
	s.PushCVD(result)

	if !result.SignalsAligned {
		rec := b.newRecord(in)
		rec.Reason = "cvd blocked: " + result.Reason
		return rec, nil
	}

	strength := result.Strength(s.Side)

	// Aggressive: a prior spike confirmed by the next aligned candle.
	if b.cvdSpiked && strength >= b.cfg.CVDConfirmPct {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("cvd aggressive: confirm %.1f%% after spike", strength)
		return b.afterConfirmation(rec, domain.PathCVDAggressive, in)
	}
	b.cvdSpiked = strength >= b.cfg.CVDSpikePct

	// Sustained: consecutive candles above the moderate bar.
	if strength >= b.cfg.CVDSustainedPct {
		b.cvdStreak++
	} else {
		b.cvdStreak = 0
	}
	if b.cvdStreak >= b.cfg.CVDSustainedCount {
		rec := b.newRecord(in)
		rec.Reason = fmt.Sprintf("cvd sustained: %d candles ≥ %.1f%%", b.cvdStreak, b.cfg.CVDSustainedPct)
		return b.afterConfirmation(rec, domain.PathCVDSustained, in)
	}

	return nil, nil
}

// afterConfirmation routes a confirmed breakout: MOMENTUM goes to CVD
// monitoring when enabled, everything else runs the entry filter pipeline.
func (b *Breakout) afterConfirmation(rec *domain.DecisionRecord, path domain.EntryPath, in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	if path == domain.PathMomentum && b.cfg.UseCVD {
		b.state.State = domain.StateCVDMonitoring
		b.cvdStart = in.End
		b.cvdSpiked = false
		b.cvdStreak = 0
		rec.Path = path
		rec.Reason += ", awaiting cvd confirmation"
		return rec, nil
	}
	return b.tryEnter(rec, path, in)
}

// tryEnter runs the filter pipeline and emits the entry command when every
// check passes. A filter rejection resets the side to MONITORING; the record
// carries every filter's measured value either way.
func (b *Breakout) tryEnter(rec *domain.DecisionRecord, path domain.EntryPath, in CandleClose) (*domain.DecisionRecord, *domain.Command) {
	s := b.state
	rec.Path = path

	results, ok := b.filters.Evaluate(EntryContext{
		State:       s,
		Price:       in.Candle.Close,
		VolumeRatio: in.VolumeRatio,
		Highs:       in.Highs,
		Lows:        in.Lows,
		Closes:      in.Closes,
	})
	rec.Filters = results

	if !ok {
		last := results[len(results)-1]
		rec.Reason = fmt.Sprintf("rejected by %s: %s", last.Name, last.Reason)
		b.reset()
		return rec, nil
	}

	s.State = domain.StateEntered
	s.Attempts++
	rec.Entered = true
	rec.Reason = fmt.Sprintf("entered via %s (attempt %d/%d)", path, s.Attempts, s.MaxAttempts)

	cmd := &domain.Command{
		ID:     uuid.New().String(),
		Symbol: s.Symbol,
		Side:   s.Side,
		Action: domain.ActionEnter,
		Price:  in.Candle.Close,
		Reason: string(path),
		At:     in.End,
	}
	return rec, cmd
}

// reset returns the side to MONITORING and clears per-attempt bookkeeping.
func (b *Breakout) reset() {
	b.state.State = domain.StateMonitoring
	b.state.BreakoutDetectedAt = time.Time{}
	b.state.BreakoutPrice = 0
	b.pulledBack = false
	b.holdSince = time.Time{}
	b.cvdStart = time.Time{}
	b.cvdSpiked = false
	b.cvdStreak = 0
}

func (b *Breakout) newRecord(in CandleClose) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		ID:            uuid.New().String(),
		Symbol:        b.state.Symbol,
		Side:          b.state.Side,
		At:            in.End,
		State:         b.state.State,
		VolumeRatio:   in.VolumeRatio,
		CandleSizePct: in.Candle.BodyPct(),
	}
}
