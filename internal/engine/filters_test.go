package engine

import (
	"testing"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longState(pivot float64, targets [3]float64) *domain.SymbolSideState {
	return &domain.SymbolSideState{
		Symbol:      "AAPL",
		Side:        domain.Long,
		Pivot:       pivot,
		Targets:     targets,
		State:       domain.StateBreakoutDetected,
		MaxAttempts: 2,
	}
}

func TestPipeline_Directional_ShortCircuits(t *testing.T) {
	p := NewPipeline(DefaultFilterConfig())

	results, ok := p.Evaluate(EntryContext{
		State: longState(100, [3]float64{103, 105, 107}),
		Price: 99.5, // wrong side of the pivot for LONG
	})
	assert.False(t, ok)
	require.Len(t, results, 1, "no later check runs after a directional violation")
	assert.Equal(t, "directional", results[0].Name)
	assert.False(t, results[0].Passed)
}

func TestPipeline_AttemptCap(t *testing.T) {
	p := NewPipeline(DefaultFilterConfig())
	s := longState(100, [3]float64{103, 105, 107})
	s.Attempts = 2

	results, ok := p.Evaluate(EntryContext{State: s, Price: 100.5, VolumeRatio: 2})
	assert.False(t, ok)
	last := results[len(results)-1]
	assert.Equal(t, "attempt_cap", last.Name)
}

func TestPipeline_RoomToRun_NextUnreachedTarget(t *testing.T) {
	p := NewPipeline(DefaultFilterConfig())

	// T1 already promoted: room is measured to T2, not the consumed target.
	s := longState(101, [3]float64{101, 103, 105})
	s.NextTarget = 1
	results, ok := p.Evaluate(EntryContext{State: s, Price: 101.2, VolumeRatio: 2})
	assert.True(t, ok)
	room := findFilter(t, results, "room_to_run")
	assert.InDelta(t, (103-101.2)/101.2*100, room.Measured, 1e-9)
	assert.True(t, room.Passed)

	// Price already beyond the tracked target: skip it and measure the next.
	s = longState(100, [3]float64{101, 103, 105})
	results, ok = p.Evaluate(EntryContext{State: s, Price: 101.2, VolumeRatio: 2})
	assert.True(t, ok)
	room = findFilter(t, results, "room_to_run")
	assert.InDelta(t, (103-101.2)/101.2*100, room.Measured, 1e-9)

	// Not enough room to the next target.
	s = longState(100, [3]float64{101, 0, 0})
	results, ok = p.Evaluate(EntryContext{State: s, Price: 100.5, VolumeRatio: 2})
	assert.False(t, ok)
	room = results[len(results)-1]
	assert.Equal(t, "room_to_run", room.Name)
	assert.False(t, room.Passed)

	// Every target spent: nothing left to run to.
	s = longState(105, [3]float64{101, 103, 105})
	s.NextTarget = 3
	results, ok = p.Evaluate(EntryContext{State: s, Price: 105.5, VolumeRatio: 2})
	assert.False(t, ok)
	assert.Equal(t, "no unreached target remaining", results[len(results)-1].Reason)
}

func TestPipeline_Volume(t *testing.T) {
	p := NewPipeline(DefaultFilterConfig())
	s := longState(100, [3]float64{103, 105, 107})

	// Below the ratio: reject.
	results, ok := p.Evaluate(EntryContext{State: s, Price: 100.5, VolumeRatio: 0.8})
	assert.False(t, ok)
	assert.Equal(t, "volume", results[len(results)-1].Name)

	// No history yet: skip, and the remaining checks still run.
	results, ok = p.Evaluate(EntryContext{State: s, Price: 100.5, VolumeRatio: 0})
	assert.True(t, ok)
	vol := findFilter(t, results, "volume")
	assert.True(t, vol.Skipped)
	assert.False(t, vol.Passed)
}

func TestPipeline_Choppiness(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.ATRPeriod = 3
	cfg.ChopWindow = 3
	p := NewPipeline(cfg)
	s := longState(100, [3]float64{103, 105, 107})

	// Too little history: skipped, not failed.
	results, ok := p.Evaluate(EntryContext{
		State: s, Price: 100.5, VolumeRatio: 2,
		Highs: []float64{101}, Lows: []float64{99}, Closes: []float64{100},
	})
	assert.True(t, ok)
	chop := findFilter(t, results, "choppiness")
	assert.True(t, chop.Skipped)

	// Wide recent range vs ATR: trending, passes.
	highs := []float64{100.5, 100.6, 100.7, 101.4, 102.2, 103.0}
	lows := []float64{100.0, 100.1, 100.2, 100.8, 101.6, 102.4}
	closes := []float64{100.3, 100.4, 100.5, 101.2, 102.0, 102.8}
	results, ok = p.Evaluate(EntryContext{
		State: s, Price: 100.5, VolumeRatio: 2,
		Highs: highs, Lows: lows, Closes: closes,
	})
	assert.True(t, ok)
	chop = findFilter(t, results, "choppiness")
	assert.False(t, chop.Skipped)
	assert.True(t, chop.Passed)
	assert.Greater(t, chop.Measured, cfg.MinRangeATRRatio)
}

func findFilter(t *testing.T, results []domain.FilterResult, name string) domain.FilterResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("filter %q not in results", name)
	return domain.FilterResult{}
}
