package engine

import "time"

// Config groups every decision-engine threshold. The sub-bar and candle
// durations fix the aggregation ratio k once for the whole session; nothing
// downstream may re-derive it.
type Config struct {
	CandleDuration time.Duration
	SubBarDuration time.Duration

	VolumeLookback   int     // candles in the rolling volume average
	MaxAttempts      int     // entry attempts per side per session
	DojiThresholdPct float64 // body % below which a candle is NEUTRAL

	Breakout BreakoutConfig
	Filter   FilterConfig
	Pivot    PivotConfig
	Position PositionConfig
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		CandleDuration:   time.Minute,
		SubBarDuration:   time.Minute,
		VolumeLookback:   20,
		MaxAttempts:      2,
		DojiThresholdPct: 0.02,
		Breakout:         DefaultBreakoutConfig(),
		Filter:           DefaultFilterConfig(),
		Pivot:            DefaultPivotConfig(),
		Position:         DefaultPositionConfig(),
	}
}
