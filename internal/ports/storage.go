package ports

import (
	"context"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// DecisionStorage persiste el registro de decisiones para análisis posterior.
type DecisionStorage interface {
	// SaveDecisions persiste los registros de evaluación de breakouts.
	SaveDecisions(ctx context.Context, records []*domain.DecisionRecord) error

	// SavePivotEvents persiste los ajustes de pivot para auditoría.
	SavePivotEvents(ctx context.Context, events []domain.PivotUpdateEvent) error

	// SavePosition persiste una posición cerrada.
	SavePosition(ctx context.Context, pos *domain.Position) error

	// Close cierra la conexión limpiamente.
	Close() error
}
