package domain

import "time"

// Bar es la unidad cruda del feed: un sub-bar OHLCV de duración fija.
// Su duración puede ser menor que la del candle de decisión (live) o igual (replay).
type Bar struct {
	Symbol string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candle es la unidad de decisión: k sub-bars consecutivos agregados a una
// duración fija (p.ej. 1 minuto). Toda clasificación opera sobre Candles
// completos, nunca sobre sub-bars sueltos ni candles parciales.
type Candle struct {
	Symbol  string
	Start   time.Time
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  float64
	SubBars int // cuántos sub-bars lo componen (k)
}

// End devuelve el instante de cierre del candle.
func (c Candle) End(candleDuration time.Duration) time.Time {
	return c.Start.Add(candleDuration)
}

// BodyPct devuelve |close-open|/open en porcentaje. Es la medida de tamaño
// de vela usada por la clasificación momentum y por el umbral DOJI.
func (c Candle) BodyPct() float64 {
	if c.Open == 0 {
		return 0
	}
	pct := (c.Close - c.Open) / c.Open * 100
	if pct < 0 {
		return -pct
	}
	return pct
}

// IsUp devuelve true si el candle cerró por encima de su apertura.
func (c Candle) IsUp() bool { return c.Close > c.Open }
