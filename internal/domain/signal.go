package domain

import "time"

// CVDTrend es la dirección del flujo de órdenes según el imbalance.
type CVDTrend string

const (
	TrendBullish CVDTrend = "BULLISH"
	TrendBearish CVDTrend = "BEARISH"
)

// CandleDirection es la dirección de precio del candle de decisión completo.
type CandleDirection string

const (
	DirectionUp      CandleDirection = "UP"
	DirectionDown    CandleDirection = "DOWN"
	DirectionNeutral CandleDirection = "NEUTRAL" // DOJI: cuerpo bajo el umbral
)

// CVDResult es el resultado del cálculo de imbalance para un candle de decisión.
//
// Convención de signo — definida UNA vez aquí y reutilizada en todo el repo:
//
//	ImbalancePct = 100 × (sellVolume − buyVolume) / (sellVolume + buyVolume)
//
// Negativo ⇒ presión compradora neta (confirma LONG).
// Positivo ⇒ presión vendedora neta (confirma SHORT).
type CVDResult struct {
	At              time.Time
	BuyVolume       float64
	SellVolume      float64
	ImbalancePct    float64
	Trend           CVDTrend
	CandleDirection CandleDirection
	SignalsAligned  bool
	Reason          string
}

// Strength devuelve la magnitud del imbalance a favor del lado dado
// (positiva cuando confirma, negativa cuando contradice). Centraliza la
// convención de signo para que ningún call site la re-derive.
func (r CVDResult) Strength(side Side) float64 {
	if side == Long {
		return -r.ImbalancePct
	}
	return r.ImbalancePct
}

// Classification es el veredicto sobre el candle que cerró tras el breakout.
type Classification string

const (
	ClassFailed   Classification = "FAILED"
	ClassWeak     Classification = "WEAK"
	ClassMomentum Classification = "MOMENTUM"
)

// FilterResult es el resultado de un check individual del pipeline de filtros.
// Skipped marca un filtro omitido por falta de historial (no es un fallo).
type FilterResult struct {
	Name      string
	Passed    bool
	Skipped   bool
	Measured  float64
	Threshold float64
	Reason    string
}

// EntryPath identifica qué camino de confirmación produjo la entrada.
type EntryPath string

const (
	PathMomentum        EntryPath = "MOMENTUM"
	PathPullbackRetest  EntryPath = "PULLBACK_RETEST"
	PathSustainedHold   EntryPath = "SUSTAINED_HOLD"
	PathDelayedMomentum EntryPath = "DELAYED_MOMENTUM"
	PathCVDAggressive   EntryPath = "CVD_AGGRESSIVE"
	PathCVDSustained    EntryPath = "CVD_SUSTAINED"
	PathNone            EntryPath = ""
)

// Action es el tipo de orden emitida hacia el ejecutor externo.
type Action string

const (
	ActionEnter   Action = "ENTER"
	ActionPartial Action = "PARTIAL"
	ActionExit    Action = "EXIT"
)

// Command es una orden de entrada/salida para el componente de ejecución.
type Command struct {
	ID       string
	Symbol   string
	Side     Side
	Action   Action
	Price    float64
	Shares   float64
	Fraction float64 // para PARTIAL: fracción de la posición original
	Reason   string
	At       time.Time
}

// DecisionRecord documenta una evaluación de intento de breakout: cada filtro
// con su valor medido, el camino de entrada (si lo hubo) y el motivo final.
// Ninguna decisión de entrada queda sin explicar.
type DecisionRecord struct {
	ID             string
	Symbol         string
	Side           Side
	At             time.Time
	State          MonitorState
	Classification Classification
	VolumeRatio    float64
	CandleSizePct  float64
	Filters        []FilterResult
	Path           EntryPath
	Entered        bool
	Reason         string
}
