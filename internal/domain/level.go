package domain

import "time"

// LevelSet son los niveles precalculados para un símbolo y lado, producidos
// por el scanner externo (fuera del alcance de este repo).
type LevelSet struct {
	Symbol  string
	Side    Side
	Pivot   float64
	Targets [3]float64 // T1, T2, T3 en orden de progresión
}

// PivotTrigger identifica qué regla disparó un ajuste de pivot.
type PivotTrigger string

const (
	TriggerSessionGap      PivotTrigger = "SESSION_GAP"
	TriggerTargetHit       PivotTrigger = "TARGET_HIT"
	TriggerFailureRecovery PivotTrigger = "FAILURE_RECOVERY"
)

// PivotUpdateEvent registra un ajuste del pivot activo. Se consume en la
// siguiente evaluación del state machine; nunca modifica retroactivamente
// el pivot registrado de una posición ya llenada.
type PivotUpdateEvent struct {
	Symbol   string
	Side     Side
	OldPivot float64
	NewPivot float64
	Trigger  PivotTrigger
	At       time.Time
}
