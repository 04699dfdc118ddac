package engine

import (
	"fmt"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/markcheno/go-talib"
)

// FilterConfig holds the thresholds of the entry filter pipeline.
type FilterConfig struct {
	// MinRoomToRunPct is the minimum remaining distance (%) from price to the
	// next unreached target.
	MinRoomToRunPct float64
	// MinVolumeRatio is the minimum candleVolume/averageVolume at entry time.
	MinVolumeRatio float64
	// ATRPeriod is the candle lookback for the choppiness ATR.
	ATRPeriod int
	// ChopWindow is how many recent candles define the short-window range.
	ChopWindow int
	// MinRangeATRRatio rejects setups whose short-window range is below this
	// multiple of ATR (not enough trend energy).
	MinRangeATRRatio float64
}

// DefaultFilterConfig returns the production thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinRoomToRunPct:  1.5,
		MinVolumeRatio:   1.0,
		ATRPeriod:        14,
		ChopWindow:       5,
		MinRangeATRRatio: 0.8,
	}
}

// EntryContext is everything the pipeline needs to vet one entry.
type EntryContext struct {
	State       *domain.SymbolSideState
	Price       float64
	VolumeRatio float64
	// Closed-candle history, oldest first, for the choppiness ATR.
	Highs, Lows, Closes []float64
}

// Pipeline runs the ordered, short-circuiting entry checks. Every check emits
// a FilterResult with the measured value and threshold so no rejection is a
// bare boolean.
type Pipeline struct {
	cfg FilterConfig
}

// NewPipeline creates a Pipeline with the given thresholds.
func NewPipeline(cfg FilterConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Evaluate runs the checks in order and stops at the first failure. The
// returned results include the failing check; ok is true only when every
// non-skipped check passed.
func (p *Pipeline) Evaluate(in EntryContext) ([]domain.FilterResult, bool) {
	checks := []func(EntryContext) domain.FilterResult{
		p.directional,
		p.attemptCap,
		p.roomToRun,
		p.volume,
		p.choppiness,
	}

	var results []domain.FilterResult
	for _, check := range checks {
		r := check(in)
		results = append(results, r)
		if !r.Passed && !r.Skipped {
			return results, false
		}
	}
	return results, true
}

// directional requires price at/beyond the pivot for the side. A violation
// blocks regardless of any other signal.
func (p *Pipeline) directional(in EntryContext) domain.FilterResult {
	s := in.State
	ok := in.Price >= s.Pivot
	if s.Side == domain.Short {
		ok = in.Price <= s.Pivot
	}
	r := domain.FilterResult{
		Name:      "directional",
		Passed:    ok,
		Measured:  in.Price,
		Threshold: s.Pivot,
	}
	if !ok {
		r.Reason = fmt.Sprintf("%s entry with price %.2f on wrong side of pivot %.2f", s.Side, in.Price, s.Pivot)
	}
	return r
}

// attemptCap rejects once the side has used up its attempts.
func (p *Pipeline) attemptCap(in EntryContext) domain.FilterResult {
	s := in.State
	r := domain.FilterResult{
		Name:      "attempt_cap",
		Passed:    s.Attempts < s.MaxAttempts,
		Measured:  float64(s.Attempts),
		Threshold: float64(s.MaxAttempts),
	}
	if !r.Passed {
		r.Reason = fmt.Sprintf("attempts %d reached cap %d", s.Attempts, s.MaxAttempts)
	}
	return r
}

// roomToRun measures distance to the next UNREACHED target. Targets the price
// has already passed are skipped over — comparing against a hit target always
// yields negative room and would neuter the filter.
func (p *Pipeline) roomToRun(in EntryContext) domain.FilterResult {
	s := in.State
	r := domain.FilterResult{Name: "room_to_run", Threshold: p.cfg.MinRoomToRunPct}

	for idx := s.NextTarget; idx < len(s.Targets); idx++ {
		t := s.Targets[idx]
		if t == 0 {
			break
		}
		room := s.Side.Favorable(t, in.Price) / in.Price * 100
		if room <= 0 {
			continue // already beyond this target, measure against the next
		}
		r.Measured = room
		r.Passed = room >= p.cfg.MinRoomToRunPct
		if !r.Passed {
			r.Reason = fmt.Sprintf("room to T%d only %.2f%% (min %.2f%%)", idx+1, room, p.cfg.MinRoomToRunPct)
		}
		return r
	}

	r.Passed = false
	r.Reason = "no unreached target remaining"
	return r
}

// volume applies the standalone volume-ratio check.
func (p *Pipeline) volume(in EntryContext) domain.FilterResult {
	r := domain.FilterResult{
		Name:      "volume",
		Measured:  in.VolumeRatio,
		Threshold: p.cfg.MinVolumeRatio,
	}
	if in.VolumeRatio <= 0 {
		// No closed-candle average yet; skip rather than reject.
		r.Skipped = true
		r.Reason = "no volume history"
		return r
	}
	r.Passed = in.VolumeRatio >= p.cfg.MinVolumeRatio
	if !r.Passed {
		r.Reason = fmt.Sprintf("volume ratio %.2fx below %.2fx", in.VolumeRatio, p.cfg.MinVolumeRatio)
	}
	return r
}

// choppiness compares the short-window candle range against ATR. With fewer
// candles than the ATR period needs (session open), the check is skipped, not
// failed.
func (p *Pipeline) choppiness(in EntryContext) domain.FilterResult {
	r := domain.FilterResult{Name: "choppiness", Threshold: p.cfg.MinRangeATRRatio}

	need := p.cfg.ATRPeriod + 1
	if len(in.Closes) < need || len(in.Closes) < p.cfg.ChopWindow {
		r.Skipped = true
		r.Reason = fmt.Sprintf("only %d candles, need %d", len(in.Closes), need)
		return r
	}

	atrSeries := talib.Atr(in.Highs, in.Lows, in.Closes, p.cfg.ATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	if atr <= 0 {
		r.Skipped = true
		r.Reason = "zero ATR"
		return r
	}

	hi, lo := in.Highs[len(in.Highs)-1], in.Lows[len(in.Lows)-1]
	for i := len(in.Highs) - p.cfg.ChopWindow; i < len(in.Highs); i++ {
		if in.Highs[i] > hi {
			hi = in.Highs[i]
		}
		if in.Lows[i] < lo {
			lo = in.Lows[i]
		}
	}

	ratio := (hi - lo) / atr
	r.Measured = ratio
	r.Passed = ratio >= p.cfg.MinRangeATRRatio
	if !r.Passed {
		r.Reason = fmt.Sprintf("range/ATR %.2f below %.2f, too choppy", ratio, p.cfg.MinRangeATRRatio)
	}
	return r
}
