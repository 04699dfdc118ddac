package domain

import "time"

// TickSide indica el lado agresor de un trade, si el feed lo reporta.
type TickSide string

const (
	TickBuy     TickSide = "BUY"
	TickSell    TickSide = "SELL"
	TickUnknown TickSide = ""
)

// Tick es un trade individual del feed de mercado. Se usa para la detección
// intrabar del cruce de pivot y para el cálculo de CVD cuando hay datos
// a nivel de trade.
type Tick struct {
	Symbol string
	Time   time.Time
	Price  float64
	Size   float64
	Side   TickSide
}
