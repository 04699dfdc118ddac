package domain

import "time"

// SymbolReport resume la actividad de un símbolo en la sesión.
type SymbolReport struct {
	Symbol      string
	Decisions   int
	Entries     int
	Wins        int
	Losses      int
	RealizedPnL float64
	ExitReasons map[ExitReason]int
	Positions   []*Position // posiciones cerradas, en orden
}

// SessionReport resume una sesión completa (backtest o live).
type SessionReport struct {
	From        time.Time
	To          time.Time
	Symbols     []SymbolReport
	TotalPnL    float64
	TotalTrades int
}
