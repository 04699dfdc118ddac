package ports

import (
	"context"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// OrderExecutor consume los comandos de entrada/salida del engine. La
// conectividad real con el broker queda fuera de este repo; el ejecutor de
// papel incluido simula fills al precio del comando.
type OrderExecutor interface {
	// Execute procesa un comando ENTER/PARTIAL/EXIT.
	Execute(ctx context.Context, cmd domain.Command) error
}
