package engine

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// Aggregator converts a stream of fixed-size sub-bars into fixed-duration
// decision candles. The sub-bars-per-candle ratio k is computed once from the
// configured durations, never inferred per call site: a "20 candle" lookback
// is always 20 full candles no matter what the feed's native bar size is.
//
// Candle boundaries are aligned to the feed clock (bar timestamps truncated
// to the candle duration), not to bar counts. A quiet interval with no trades
// therefore never phase-shifts later candles: the candle missing a sub-bar
// simply carries less volume, and every following candle keeps its window.
//
// All methods are pure functions of the bar slice and index, so the same
// aggregator drives both the live monitor and the replay loop.
type Aggregator struct {
	candleDur time.Duration
	subBarDur time.Duration
	k         int
}

// NewAggregator validates the durations and fixes k. The candle duration must
// be a whole multiple of the sub-bar duration; k == 1 means the feed already
// delivers native candles (the replay case) and aggregation is a passthrough.
func NewAggregator(candleDur, subBarDur time.Duration) (*Aggregator, error) {
	if candleDur <= 0 || subBarDur <= 0 {
		return nil, fmt.Errorf("engine.NewAggregator: durations must be positive (candle=%s sub=%s)", candleDur, subBarDur)
	}
	if candleDur%subBarDur != 0 {
		return nil, fmt.Errorf("engine.NewAggregator: candle %s not a multiple of sub-bar %s", candleDur, subBarDur)
	}
	return &Aggregator{
		candleDur: candleDur,
		subBarDur: subBarDur,
		k:         int(candleDur / subBarDur),
	}, nil
}

// SubBarsPerCandle returns k.
func (a *Aggregator) SubBarsPerCandle() int { return a.k }

// CandleDuration returns the decision-candle duration.
func (a *Aggregator) CandleDuration() time.Duration { return a.candleDur }

// CandleAt returns the decision candle closed by bars[i], and false when
// bars[i] does not end on a candle boundary. The candle spans every sub-bar
// inside its clock-aligned window; partial candles are never handed to
// classification.
func (a *Aggregator) CandleAt(bars []domain.Bar, i int) (domain.Candle, bool) {
	if i < 0 || i >= len(bars) {
		return domain.Candle{}, false
	}
	end := bars[i].Start.Add(a.subBarDur)
	if !end.Equal(end.Truncate(a.candleDur)) {
		return domain.Candle{}, false
	}
	from := end.Add(-a.candleDur)
	start := i
	for start > 0 && !bars[start-1].Start.Before(from) {
		start--
	}
	c := a.merge(bars[start : i+1])
	c.Start = from
	return c, true
}

// AverageVolume averages candle volume over the most recent `lookback` closed
// candles at stream position i. It always averages whole candles, never raw
// sub-bars: with 10s sub-bars and 1m candles, lookback=20 still spans 20
// minutes of data. Returns false when not a single closed candle exists yet.
func (a *Aggregator) AverageVolume(bars []domain.Bar, i int, lookback int) (float64, bool) {
	if lookback <= 0 {
		return 0, false
	}
	candles := a.closedCandles(bars, i)
	if len(candles) == 0 {
		return 0, false
	}
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}
	return total / float64(len(candles)), true
}

// Closes returns the high, low and close of each closed candle up to position
// i, oldest first. Used by the choppiness filter for its ATR input.
func (a *Aggregator) Closes(bars []domain.Bar, i int) (highs, lows, closes []float64) {
	for _, c := range a.closedCandles(bars, i) {
		highs = append(highs, c.High)
		lows = append(lows, c.Low)
		closes = append(closes, c.Close)
	}
	return highs, lows, closes
}

// closedCandles groups bars[0..i] into clock-aligned candle windows and
// returns the candles whose window has fully elapsed at bars[i]'s end. The
// trailing partial candle, if any, is dropped.
func (a *Aggregator) closedCandles(bars []domain.Bar, i int) []domain.Candle {
	if i < 0 || len(bars) == 0 {
		return nil
	}
	if i >= len(bars) {
		i = len(bars) - 1
	}
	now := bars[i].Start.Add(a.subBarDur)

	var out []domain.Candle
	j := 0
	for j <= i {
		from := bars[j].Start.Truncate(a.candleDur)
		to := from.Add(a.candleDur)
		if to.After(now) {
			break
		}
		end := j
		for end+1 <= i && bars[end+1].Start.Before(to) {
			end++
		}
		c := a.merge(bars[j : end+1])
		c.Start = from
		out = append(out, c)
		j = end + 1
	}
	return out
}

// merge combines consecutive sub-bars: first open, last close, extreme
// high/low, summed volume.
func (a *Aggregator) merge(sub []domain.Bar) domain.Candle {
	c := domain.Candle{
		Symbol:  sub[0].Symbol,
		Start:   sub[0].Start,
		Open:    sub[0].Open,
		High:    sub[0].High,
		Low:     sub[0].Low,
		Close:   sub[len(sub)-1].Close,
		SubBars: len(sub),
	}
	for _, b := range sub {
		if b.High > c.High {
			c.High = b.High
		}
		if b.Low < c.Low {
			c.Low = b.Low
		}
		c.Volume += b.Volume
	}
	return c
}
