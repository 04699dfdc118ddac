package ports

import (
	"context"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// Notifier presenta el resultado de una sesión (backtest o live) al usuario.
type Notifier interface {
	// Notify muestra el resumen de la sesión.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, report domain.SessionReport) error
}
