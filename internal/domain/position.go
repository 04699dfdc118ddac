package domain

import "time"

// ExitReason clasifica la salida de una posición para el accounting externo.
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitStop         ExitReason = "STOP"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitStall        ExitReason = "STALL"
	ExitFinalTarget  ExitReason = "FINAL_TARGET"
	ExitSessionEnd   ExitReason = "SESSION_END"
)

// PositionState es la fase de gestión de una posición abierta.
type PositionState string

const (
	PositionOpen     PositionState = "OPEN"
	PositionPartial1 PositionState = "PARTIAL_1"
	PositionPartial2 PositionState = "PARTIAL_2"
	PositionClosed   PositionState = "CLOSED"
)

// Position es una posición llenada gestionada por el PositionManager.
// StopPrice se fija atómicamente con la entrada: nunca existe una posición
// sin stop.
type Position struct {
	ID           string
	Symbol       string
	Side         Side
	EntryPrice   float64
	Shares       float64
	StopPrice    float64
	Targets      [3]float64
	EntryTime    time.Time
	PivotAtEntry float64

	State          PositionState
	PartialsTaken  map[int]bool // índice de target → partial tomado
	FractionOpen   float64      // fracción de Shares aún abierta (≤ 1.0)
	TrailingStop   float64      // 0 hasta que el trailing se activa
	RunningExtreme float64      // máximo (LONG) / mínimo (SHORT) desde la entrada
	ExitReason     ExitReason
	ExitPrice      float64
	ExitTime       time.Time
}

// OpenShares devuelve las acciones aún abiertas.
func (p *Position) OpenShares() float64 {
	return p.Shares * p.FractionOpen
}

// UnrealizedPct devuelve la ganancia no realizada en % a favor del lado.
func (p *Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.Side.Favorable(price, p.EntryPrice) / p.EntryPrice * 100
}

// UpdateExtreme avanza el extremo favorable desde la entrada.
func (p *Position) UpdateExtreme(price float64) {
	if p.RunningExtreme == 0 || p.Side.Favorable(price, p.RunningExtreme) > 0 {
		p.RunningExtreme = price
	}
}

// StopHit devuelve true si price tocó el stop vigente (trailing si existe).
func (p *Position) StopHit(price float64) bool {
	stop := p.StopPrice
	if p.TrailingStop != 0 {
		stop = p.TrailingStop
	}
	if p.Side == Long {
		return price <= stop
	}
	return price >= stop
}
