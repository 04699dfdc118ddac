package engine

import (
	"testing"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Breakout.UseCVD = false
	return cfg
}

func longLevels() []domain.LevelSet {
	return []domain.LevelSet{{
		Symbol:  "AAPL",
		Side:    domain.Long,
		Pivot:   100,
		Targets: [3]float64{103, 105, 107},
	}}
}

// flatBar emits a quiet sub-bar used to build volume history.
func flatBar(start time.Time, price, volume float64) domain.Bar {
	return domain.Bar{
		Symbol: "AAPL", Start: start,
		Open: price, High: price + 0.05, Low: price - 0.05, Close: price,
		Volume: volume,
	}
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(testConfig(), "AAPL", nil)
	assert.Error(t, err, "no levels")

	_, err = NewMonitor(testConfig(), "AAPL", []domain.LevelSet{{Symbol: "TSLA", Side: domain.Long, Pivot: 100}})
	assert.Error(t, err, "level for another symbol")

	cfg := testConfig()
	cfg.SubBarDuration = 25 * time.Second
	_, err = NewMonitor(cfg, "AAPL", longLevels())
	assert.Error(t, err, "durations must divide")
}

func TestMonitor_MomentumBreakoutLifecycle(t *testing.T) {
	m, err := NewMonitor(testConfig(), "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	// Quiet history below the pivot.
	for i := 0; i < 5; i++ {
		up := m.OnBar(flatBar(start.Add(time.Duration(i)*time.Minute), 99.5, 10))
		assert.Empty(t, up.Commands)
		assert.Empty(t, up.PivotEvents, "no gap: opened on the monitoring side")
	}

	// Breakout candle: high crosses the pivot intrabar, closes strong on
	// 3x volume.
	breakout := domain.Bar{
		Symbol: "AAPL", Start: start.Add(5 * time.Minute),
		Open: 100.1, High: 100.9, Low: 100.0, Close: 100.8,
		Volume: 30,
	}
	up := m.OnBar(breakout)

	require.Len(t, up.Commands, 1)
	cmd := up.Commands[0]
	assert.Equal(t, domain.ActionEnter, cmd.Action)
	assert.Equal(t, domain.Long, cmd.Side)
	assert.Equal(t, 100.8, cmd.Price)
	assert.Equal(t, 100.0, cmd.Shares)

	require.NotEmpty(t, up.Decisions)
	assert.True(t, up.Decisions[0].Entered)
	assert.Equal(t, domain.ClassMomentum, up.Decisions[0].Classification)

	state := m.Sides()[domain.Long]
	assert.Equal(t, domain.StateEntered, state.State)
	assert.Equal(t, 1, state.Attempts)

	// Next bar dips through the pivot: the stop (set at the pivot) fills.
	dip := domain.Bar{
		Symbol: "AAPL", Start: start.Add(6 * time.Minute),
		Open: 100.8, High: 100.8, Low: 99.9, Close: 100.0,
		Volume: 12,
	}
	up = m.OnBar(dip)

	require.Len(t, up.Commands, 1)
	assert.Equal(t, domain.ActionExit, up.Commands[0].Action)
	require.Len(t, up.ClosedPositions, 1)
	closed := up.ClosedPositions[0]
	assert.Equal(t, domain.ExitStop, closed.ExitReason)
	assert.Equal(t, 100.0, closed.PivotAtEntry)

	// One losing attempt spent, below the cap: back to monitoring.
	assert.Equal(t, domain.StateMonitoring, state.State)
	assert.Equal(t, 1, state.Attempts)
}

func TestMonitor_FailureRecoveryRearmsCappedSide(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	m, err := NewMonitor(cfg, "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.OnBar(flatBar(start.Add(time.Duration(i)*time.Minute), 99.5, 10))
	}
	up := m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(5 * time.Minute),
		Open: 100.1, High: 100.9, Low: 100.0, Close: 100.8,
		Volume: 30,
	})
	require.Len(t, up.Commands, 1, "entered on the only attempt")

	// Run-up to 1.6% past the pivot before the trade goes wrong.
	m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(6 * time.Minute),
		Open: 100.9, High: 101.6, Low: 100.9, Close: 101.4,
		Volume: 12,
	})

	// Losing stop-out with the cap spent: the side is DISABLED, but the
	// session extreme qualifies for recovery and re-arms it immediately.
	up = m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(7 * time.Minute),
		Open: 101.3, High: 101.3, Low: 99.0, Close: 99.2,
		Volume: 20,
	})

	require.Len(t, up.ClosedPositions, 1)
	require.Len(t, up.PivotEvents, 1)
	ev := up.PivotEvents[0]
	assert.Equal(t, domain.TriggerFailureRecovery, ev.Trigger)
	assert.Equal(t, 100.0, ev.OldPivot)
	assert.Equal(t, 101.6, ev.NewPivot)

	state := m.Sides()[domain.Long]
	assert.Equal(t, domain.StateMonitoring, state.State, "capped side re-armed")
	assert.Zero(t, state.Attempts, "fresh attempt cycle granted")
	assert.Equal(t, 101.6, state.Pivot)
}

func TestMonitor_DecisionOrderIsSideStable(t *testing.T) {
	levels := append(longLevels(), domain.LevelSet{
		Symbol: "AAPL", Side: domain.Short, Pivot: 96, Targets: [3]float64{93, 91, 89},
	})
	m, err := NewMonitor(testConfig(), "AAPL", levels)
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	m.OnBar(flatBar(start, 98, 10))

	// One wide bar arms both sides; both evaluations land on the same candle
	// close, always LONG before SHORT.
	up := m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(time.Minute),
		Open: 98, High: 100.3, Low: 95.5, Close: 98.2,
		Volume: 12,
	})

	require.Len(t, up.Decisions, 2)
	assert.Equal(t, domain.Long, up.Decisions[0].Side)
	assert.Equal(t, domain.Short, up.Decisions[1].Side)
}

func TestMonitor_SessionGapPromotesPivot(t *testing.T) {
	m, err := NewMonitor(testConfig(), "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	up := m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start,
		Open: 101.5, High: 101.6, Low: 101.3, Close: 101.4,
		Volume: 10,
	})

	require.Len(t, up.PivotEvents, 1)
	ev := up.PivotEvents[0]
	assert.Equal(t, domain.TriggerSessionGap, ev.Trigger)
	assert.Equal(t, 100.0, ev.OldPivot)
	assert.Equal(t, 101.5, ev.NewPivot)
	assert.Equal(t, 101.5, m.Sides()[domain.Long].Pivot)
}

func TestMonitor_TargetHitPromotesPivot(t *testing.T) {
	m, err := NewMonitor(testConfig(), "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	m.OnBar(flatBar(start, 99.5, 10))

	// Price runs straight through T1 while the side is still monitoring.
	up := m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(time.Minute),
		Open: 99.5, High: 103.4, Low: 99.4, Close: 103.2,
		Volume: 10,
	})

	require.NotEmpty(t, up.PivotEvents)
	assert.Equal(t, domain.TriggerTargetHit, up.PivotEvents[0].Trigger)
	state := m.Sides()[domain.Long]
	assert.Equal(t, 103.0, state.Pivot)
	assert.Equal(t, 1, state.NextTarget)
}

func TestMonitor_EndSessionFlattens(t *testing.T) {
	m, err := NewMonitor(testConfig(), "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.OnBar(flatBar(start.Add(time.Duration(i)*time.Minute), 99.5, 10))
	}
	up := m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(5 * time.Minute),
		Open: 100.1, High: 100.9, Low: 100.0, Close: 100.8,
		Volume: 30,
	})
	require.Len(t, up.Commands, 1, "entered")

	end := m.EndSession(100.9, start.Add(10*time.Minute))
	require.Len(t, end.Commands, 1)
	assert.Equal(t, domain.ActionExit, end.Commands[0].Action)
	require.Len(t, end.ClosedPositions, 1)
	assert.Equal(t, domain.ExitSessionEnd, end.ClosedPositions[0].ExitReason)

	assert.Empty(t, m.EndSession(100.9, start.Add(11*time.Minute)).Commands, "already flat")
}

func TestMonitor_TickBufferFeedsCVD(t *testing.T) {
	cfg := DefaultConfig() // CVD enabled
	m, err := NewMonitor(cfg, "AAPL", longLevels())
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.OnBar(flatBar(start.Add(time.Duration(i)*time.Minute), 99.5, 10))
	}

	// Momentum breakout routes into CVD monitoring.
	m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: start.Add(5 * time.Minute),
		Open: 100.1, High: 100.9, Low: 100.0, Close: 100.8,
		Volume: 30,
	})
	require.Equal(t, domain.StateCVDMonitoring, m.Sides()[domain.Long].State)

	// Ticks for the next candle: strong buying on a rising window.
	barStart := start.Add(6 * time.Minute)
	m.OnTick(domain.Tick{Symbol: "AAPL", Time: barStart.Add(5 * time.Second), Price: 100.85, Size: 80, Side: domain.TickBuy})
	m.OnTick(domain.Tick{Symbol: "AAPL", Time: barStart.Add(30 * time.Second), Price: 100.95, Size: 20, Side: domain.TickSell})

	m.OnBar(domain.Bar{
		Symbol: "AAPL", Start: barStart,
		Open: 100.85, High: 101.0, Low: 100.8, Close: 100.95,
		Volume: 14,
	})

	state := m.Sides()[domain.Long]
	require.NotEmpty(t, state.CVDHistory, "tick window reached the CVD engine")
	assert.Equal(t, domain.TrendBullish, state.CVDHistory[0].Trend)
	assert.InDelta(t, -60.0, state.CVDHistory[0].ImbalancePct, 1e-9)
}
