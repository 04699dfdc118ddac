package engine

import (
	"testing"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(start time.Time, dur time.Duration, prices []float64, volumes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(prices))
	for i, p := range prices {
		bars[i] = domain.Bar{
			Symbol: "AAPL",
			Start:  start.Add(time.Duration(i) * dur),
			Open:   p,
			High:   p + 0.1,
			Low:    p - 0.1,
			Close:  p,
			Volume: volumes[i],
		}
	}
	return bars
}

func TestNewAggregator_Validation(t *testing.T) {
	_, err := NewAggregator(time.Minute, 25*time.Second)
	assert.Error(t, err, "25s does not divide 1m")

	_, err = NewAggregator(0, time.Second)
	assert.Error(t, err)

	agg, err := NewAggregator(time.Minute, 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.SubBarsPerCandle())

	agg, err = NewAggregator(time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.SubBarsPerCandle(), "native candles pass through")
}

func TestAggregator_CandleAt(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	agg, err := NewAggregator(time.Minute, 20*time.Second)
	require.NoError(t, err)

	bars := []domain.Bar{
		{Symbol: "AAPL", Start: start, Open: 100, High: 101, Low: 99.5, Close: 100.5, Volume: 10},
		{Symbol: "AAPL", Start: start.Add(20 * time.Second), Open: 100.5, High: 102, Low: 100.4, Close: 101.8, Volume: 20},
		{Symbol: "AAPL", Start: start.Add(40 * time.Second), Open: 101.8, High: 101.9, Low: 101, Close: 101.2, Volume: 15},
	}

	_, ok := agg.CandleAt(bars, 0)
	assert.False(t, ok, "candle still open after 1 of 3 sub-bars")
	_, ok = agg.CandleAt(bars, 1)
	assert.False(t, ok)

	c, ok := agg.CandleAt(bars, 2)
	require.True(t, ok)
	assert.Equal(t, 100.0, c.Open, "first sub-bar open")
	assert.Equal(t, 101.2, c.Close, "last sub-bar close")
	assert.Equal(t, 102.0, c.High)
	assert.Equal(t, 99.5, c.Low)
	assert.Equal(t, 45.0, c.Volume)
	assert.Equal(t, 3, c.SubBars)
	assert.Equal(t, start, c.Start)
}

func TestAggregator_AverageVolume_WholeCandles(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	agg, err := NewAggregator(time.Minute, 20*time.Second)
	require.NoError(t, err)

	// Two closed candles: 30 total volume each, plus a partial third.
	vols := []float64{10, 10, 10, 15, 5, 10, 99}
	prices := make([]float64, len(vols))
	for i := range prices {
		prices[i] = 100
	}
	bars := makeBars(start, 20*time.Second, prices, vols)

	avg, ok := agg.AverageVolume(bars, len(bars)-1, 20)
	require.True(t, ok)
	assert.InDelta(t, 30.0, avg, 1e-9, "partial candle's sub-bar must not count")

	// Lookback smaller than history limits the window.
	avg, ok = agg.AverageVolume(bars, len(bars)-1, 1)
	require.True(t, ok)
	assert.InDelta(t, 30.0, avg, 1e-9)

	_, ok = agg.AverageVolume(bars, 1, 20)
	assert.False(t, ok, "no closed candle yet")
}

// The average must be invariant to the feed's native bar size: 20 candles is
// 20 minutes of data whether the feed sends 1m bars or 20s bars.
func TestAggregator_AverageVolume_ResolutionInvariant(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	candleVols := []float64{30, 60, 90, 30}

	native, err := NewAggregator(time.Minute, time.Minute)
	require.NoError(t, err)
	var coarse []domain.Bar
	for i, v := range candleVols {
		coarse = append(coarse, domain.Bar{Start: start.Add(time.Duration(i) * time.Minute), Open: 100, High: 100, Low: 100, Close: 100, Volume: v})
	}

	split, err := NewAggregator(time.Minute, 20*time.Second)
	require.NoError(t, err)
	var fine []domain.Bar
	for i, v := range candleVols {
		for j := 0; j < 3; j++ {
			fine = append(fine, domain.Bar{
				Start:  start.Add(time.Duration(i)*time.Minute + time.Duration(j)*20*time.Second),
				Open:   100, High: 100, Low: 100, Close: 100,
				Volume: v / 3,
			})
		}
	}

	avgCoarse, ok := native.AverageVolume(coarse, len(coarse)-1, 20)
	require.True(t, ok)
	avgFine, ok := split.AverageVolume(fine, len(fine)-1, 20)
	require.True(t, ok)

	assert.InDelta(t, avgCoarse, avgFine, 1e-9)
	assert.InDelta(t, 52.5, avgCoarse, 1e-9)
}

// A sub-bar interval with no trades produces no bar at all. Candle windows
// are clock-aligned, so the gap must not shift any later candle's boundary.
func TestAggregator_GapDoesNotShiftBoundaries(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	agg, err := NewAggregator(time.Minute, 20*time.Second)
	require.NoError(t, err)

	// The 14:30:40 sub-bar is missing; the 14:31 candle is complete.
	bars := []domain.Bar{
		{Symbol: "AAPL", Start: start, Open: 100, High: 100.2, Low: 99.9, Close: 100.1, Volume: 10},
		{Symbol: "AAPL", Start: start.Add(20 * time.Second), Open: 100.1, High: 100.3, Low: 100, Close: 100.2, Volume: 10},
		{Symbol: "AAPL", Start: start.Add(60 * time.Second), Open: 100.2, High: 100.5, Low: 100.1, Close: 100.4, Volume: 10},
		{Symbol: "AAPL", Start: start.Add(80 * time.Second), Open: 100.4, High: 100.6, Low: 100.3, Close: 100.5, Volume: 10},
		{Symbol: "AAPL", Start: start.Add(100 * time.Second), Open: 100.5, High: 100.7, Low: 100.4, Close: 100.6, Volume: 10},
	}

	_, ok := agg.CandleAt(bars, 2)
	assert.False(t, ok, "a bar mid-window never closes a candle, whatever its index")

	c, ok := agg.CandleAt(bars, 4)
	require.True(t, ok, "the 14:31 candle closes on its own boundary despite the earlier gap")
	assert.Equal(t, start.Add(time.Minute), c.Start)
	assert.Equal(t, 3, c.SubBars)
	assert.Equal(t, 100.2, c.Open)
	assert.Equal(t, 100.6, c.Close)
	assert.Equal(t, 30.0, c.Volume)

	// The gap candle still counts for the volume average, just lighter.
	avg, ok := agg.AverageVolume(bars, 4, 20)
	require.True(t, ok)
	assert.InDelta(t, 25.0, avg, 1e-9)
}

func TestAggregator_Closes(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	agg, err := NewAggregator(time.Minute, 30*time.Second)
	require.NoError(t, err)

	prices := []float64{100, 101, 102, 103, 104}
	vols := []float64{1, 1, 1, 1, 1}
	bars := makeBars(start, 30*time.Second, prices, vols)

	_, _, closes := agg.Closes(bars, len(bars)-1)
	require.Len(t, closes, 2, "two closed candles, partial third excluded")
	assert.Equal(t, 101.0, closes[0])
	assert.Equal(t, 103.0, closes[1])
}
