package ports

import (
	"context"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// BarFeed provee el histórico de sub-bars de un símbolo para el replay.
type BarFeed interface {
	// Bars devuelve los sub-bars del símbolo ordenados por timestamp.
	Bars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// MarketStream es el feed en vivo: trades individuales más los sub-bars
// que el adapter ensambla a partir de ellos. Si el feed se cae, el core
// simplemente deja de avanzar — nunca se sintetizan datos sustitutos.
type MarketStream interface {
	// Run conecta y bombea datos hasta que el contexto se cancele.
	Run(ctx context.Context) error

	// Ticks devuelve el canal de trades individuales.
	Ticks() <-chan domain.Tick

	// Bars devuelve el canal de sub-bars cerrados.
	Bars() <-chan domain.Bar
}
