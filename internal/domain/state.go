package domain

import "time"

// Side es el lado de un setup de breakout.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Favorable devuelve cuánto ha avanzado price a favor del lado desde ref,
// en términos absolutos de precio (positivo = a favor).
func (s Side) Favorable(price, ref float64) float64 {
	if s == Long {
		return price - ref
	}
	return ref - price
}

// MonitorState es el estado del state machine de breakout para un (símbolo, lado).
type MonitorState string

const (
	StateMonitoring       MonitorState = "MONITORING"
	StateBreakoutDetected MonitorState = "BREAKOUT_DETECTED"
	StateWeakTracking     MonitorState = "WEAK_TRACKING"
	StateCVDMonitoring    MonitorState = "CVD_MONITORING"
	StateEntered          MonitorState = "ENTERED"
	StateDisabled         MonitorState = "DISABLED"
)

// cvdHistoryCap limita el historial de snapshots CVD por lado.
const cvdHistoryCap = 30

// SymbolSideState es el estado mutable de monitoreo para un (símbolo, lado).
// Reemplaza los diccionarios sueltos del diseño original con campos tipados.
type SymbolSideState struct {
	Symbol string
	Side   Side

	Pivot      float64
	Targets    [3]float64
	NextTarget int // índice en Targets del próximo objetivo no alcanzado

	State              MonitorState
	BreakoutDetectedAt time.Time
	BreakoutPrice      float64

	Attempts    int
	MaxAttempts int

	// CVDHistory guarda snapshots de imbalance, el más reciente primero.
	CVDHistory []CVDResult

	// SessionExtreme es el máximo (LONG) o mínimo (SHORT) de la sesión,
	// usado por los ajustes de pivot por gap y por recuperación de fallo.
	SessionExtreme float64
}

// PushCVD añade un snapshot al frente del historial, acotado a cvdHistoryCap.
func (s *SymbolSideState) PushCVD(r CVDResult) {
	s.CVDHistory = append([]CVDResult{r}, s.CVDHistory...)
	if len(s.CVDHistory) > cvdHistoryCap {
		s.CVDHistory = s.CVDHistory[:cvdHistoryCap]
	}
}

// NextTargetPrice devuelve el próximo objetivo no alcanzado y false si ya
// no quedan objetivos.
func (s *SymbolSideState) NextTargetPrice() (float64, bool) {
	if s.NextTarget < 0 || s.NextTarget >= len(s.Targets) {
		return 0, false
	}
	t := s.Targets[s.NextTarget]
	if t == 0 {
		return 0, false
	}
	return t, true
}

// Crossed devuelve true si price cruzó el pivot en la dirección del lado.
func (s *SymbolSideState) Crossed(price float64) bool {
	if s.Side == Long {
		return price > s.Pivot
	}
	return price < s.Pivot
}

// Reverted devuelve true si price volvió a cruzar el pivot en contra.
func (s *SymbolSideState) Reverted(price float64) bool {
	if s.Side == Long {
		return price < s.Pivot
	}
	return price > s.Pivot
}
