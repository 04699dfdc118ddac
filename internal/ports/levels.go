package ports

import (
	"context"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// LevelProvider obtiene los niveles precalculados (pivot + targets) por
// símbolo. El cálculo de los niveles es responsabilidad del scanner externo.
type LevelProvider interface {
	// FetchLevels devuelve los LevelSets por símbolo para la sesión.
	FetchLevels(ctx context.Context, symbols []string) (map[string][]domain.LevelSet, error)
}
