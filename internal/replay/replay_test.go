package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/adapters/exec"
	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/alejandrodnm/pivotbot/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeed struct {
	bars map[string][]domain.Bar
}

func (f *stubFeed) Bars(_ context.Context, symbol string) ([]domain.Bar, error) {
	return f.bars[symbol], nil
}

type stubLevels struct {
	levels map[string][]domain.LevelSet
}

func (l *stubLevels) FetchLevels(_ context.Context, _ []string) (map[string][]domain.LevelSet, error) {
	return l.levels, nil
}

// breakoutSession builds a deterministic session: quiet history, a momentum
// breakout, a partial-taking run-up and a final drift into the close.
func breakoutSession() []domain.Bar {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	var bars []domain.Bar
	add := func(open, high, low, close, vol float64) {
		bars = append(bars, domain.Bar{
			Symbol: "AAPL",
			Start:  start.Add(time.Duration(len(bars)) * time.Minute),
			Open:   open, High: high, Low: low, Close: close,
			Volume: vol,
		})
	}

	for i := 0; i < 6; i++ {
		add(99.5, 99.6, 99.4, 99.5, 10)
	}
	add(100.1, 100.9, 100.0, 100.8, 32) // momentum breakout, entry at close
	add(100.8, 101.5, 100.8, 101.4, 15) // +0.6%: partial 1, stop to break-even
	add(101.4, 101.6, 101.3, 101.5, 12)
	add(101.5, 101.6, 101.3, 101.4, 10)
	return bars
}

func testDriver() (*Driver, *exec.Paper) {
	cfg := engine.DefaultConfig()
	cfg.Breakout.UseCVD = false

	feed := &stubFeed{bars: map[string][]domain.Bar{"AAPL": breakoutSession()}}
	levels := &stubLevels{levels: map[string][]domain.LevelSet{
		"AAPL": {{Symbol: "AAPL", Side: domain.Long, Pivot: 100, Targets: [3]float64{103, 105, 107}}},
	}}
	executor := exec.NewPaper(10_000)
	return New(cfg, feed, levels, executor, nil), executor
}

func TestReplay_Run(t *testing.T) {
	driver, executor := testDriver()

	report, err := driver.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, report.Symbols, 1)

	sr := report.Symbols[0]
	assert.Equal(t, "AAPL", sr.Symbol)
	assert.Equal(t, 1, sr.Entries)
	require.Len(t, sr.Positions, 1)
	assert.Equal(t, domain.ExitSessionEnd, sr.Positions[0].ExitReason)
	assert.Equal(t, 1, sr.ExitReasons[domain.ExitSessionEnd])

	// Entry 100.8, partial at 101.5, session close at 101.4: profitable.
	assert.Greater(t, sr.RealizedPnL, 0.0)
	assert.InDelta(t, sr.RealizedPnL, executor.PnL("AAPL"), 1e-9,
		"report accounting matches the executor's fills")

	history := executor.History()
	require.NotEmpty(t, history)
	assert.Equal(t, domain.ActionEnter, history[0].Action)
	assert.Equal(t, domain.ActionExit, history[len(history)-1].Action)

	assert.Equal(t, report.From, breakoutSession()[0].Start)
}

// Replaying the same bars must reproduce the same decisions: every timeout is
// measured against data timestamps, never the wall clock.
func TestReplay_Deterministic(t *testing.T) {
	d1, e1 := testDriver()
	d2, e2 := testDriver()

	r1, err := d1.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	r2, err := d2.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	h1, h2 := e1.History(), e2.History()
	require.Equal(t, len(h1), len(h2))
	for i := range h1 {
		assert.Equal(t, h1[i].Action, h2[i].Action)
		assert.Equal(t, h1[i].Price, h2[i].Price)
		assert.Equal(t, h1[i].Shares, h2[i].Shares)
		assert.Equal(t, h1[i].At, h2[i].At)
	}

	assert.Equal(t, r1.TotalPnL, r2.TotalPnL)
	assert.Equal(t, r1.TotalTrades, r2.TotalTrades)
}

func TestReplay_SkipsSymbolsWithoutLevels(t *testing.T) {
	cfg := engine.DefaultConfig()
	feed := &stubFeed{bars: map[string][]domain.Bar{}}
	levels := &stubLevels{levels: map[string][]domain.LevelSet{}}
	driver := New(cfg, feed, levels, exec.NewPaper(10_000), nil)

	report, err := driver.Run(context.Background(), []string{"MSFT"})
	require.NoError(t, err)
	assert.Empty(t, report.Symbols)
}
