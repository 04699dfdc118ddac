package engine

import (
	"fmt"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// CVD computes order-flow imbalance for a decision candle and validates that
// the flow agrees with the candle's own price direction. The sign convention
// lives on domain.CVDResult and is never re-derived here.
type CVD struct {
	dojiPct float64 // body % below which a candle is NEUTRAL
}

// NewCVD creates the engine with the configured DOJI threshold (percent).
func NewCVD(dojiPct float64) *CVD {
	return &CVD{dojiPct: dojiPct}
}

// FromTicks computes the imbalance from the trades covering one full decision
// candle. Candle direction comes from the first and last trade price of the
// whole window — never from a narrower sub-bar, which is exactly the
// misclassification the alignment check exists to reject.
//
// Ticks without an aggressor side are classified by tick rule against the
// previous trade price.
func (e *CVD) FromTicks(ticks []domain.Tick) (domain.CVDResult, error) {
	if len(ticks) == 0 {
		return domain.CVDResult{}, fmt.Errorf("engine.CVD.FromTicks: no ticks in candle window")
	}

	var buy, sell float64
	prev := ticks[0].Price
	for _, t := range ticks {
		side := t.Side
		if side == domain.TickUnknown {
			switch {
			case t.Price > prev:
				side = domain.TickBuy
			case t.Price < prev:
				side = domain.TickSell
			default:
				// Split flat prints evenly rather than guessing a side.
				buy += t.Size / 2
				sell += t.Size / 2
			}
		}
		switch side {
		case domain.TickBuy:
			buy += t.Size
		case domain.TickSell:
			sell += t.Size
		}
		prev = t.Price
	}

	first := ticks[0].Price
	last := ticks[len(ticks)-1].Price
	r := e.build(buy, sell, first, last)
	r.At = ticks[len(ticks)-1].Time
	return r, nil
}

// FromCandle approximates the imbalance from OHLCV alone, for feeds with no
// trade-level data. The buy share of the volume is estimated from where the
// close sits in the candle's range. Direction uses the candle's open/close.
func (e *CVD) FromCandle(c domain.Candle) domain.CVDResult {
	rng := c.High - c.Low
	buyFrac := 0.5
	if rng > 0 {
		buyFrac = (c.Close - c.Low) / rng
	}
	buy := c.Volume * buyFrac
	sell := c.Volume - buy
	r := e.build(buy, sell, c.Open, c.Close)
	r.At = c.Start
	return r
}

// build applies the single sign convention and the alignment validation.
func (e *CVD) build(buy, sell, first, last float64) domain.CVDResult {
	r := domain.CVDResult{BuyVolume: buy, SellVolume: sell}

	total := buy + sell
	if total > 0 {
		r.ImbalancePct = (sell - buy) / total * 100
	}
	if r.ImbalancePct < 0 {
		r.Trend = domain.TrendBullish
	} else {
		r.Trend = domain.TrendBearish
	}

	r.CandleDirection = e.direction(first, last)

	switch {
	case r.CandleDirection == domain.DirectionNeutral:
		r.SignalsAligned = false
		r.Reason = fmt.Sprintf("DOJI candle (body < %.3f%%), CVD %s signal unconfirmed", e.dojiPct, r.Trend)
	case r.Trend == domain.TrendBullish && r.CandleDirection == domain.DirectionDown:
		r.SignalsAligned = false
		r.Reason = fmt.Sprintf("buy imbalance %.1f%% on a DOWN candle", r.ImbalancePct)
	case r.Trend == domain.TrendBearish && r.CandleDirection == domain.DirectionUp:
		r.SignalsAligned = false
		r.Reason = fmt.Sprintf("sell imbalance %.1f%% on an UP candle", r.ImbalancePct)
	default:
		r.SignalsAligned = true
	}
	return r
}

// direction classifies the full-window price move, with the DOJI band mapped
// to NEUTRAL. Exactly at the threshold counts as directional.
func (e *CVD) direction(first, last float64) domain.CandleDirection {
	if first == 0 {
		return domain.DirectionNeutral
	}
	bodyPct := (last - first) / first * 100
	abs := bodyPct
	if abs < 0 {
		abs = -abs
	}
	if abs < e.dojiPct {
		return domain.DirectionNeutral
	}
	if bodyPct > 0 {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}
