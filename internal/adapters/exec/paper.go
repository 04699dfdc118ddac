package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// Paper implementa ports.OrderExecutor simulando fills al precio del comando.
// Lleva la contabilidad de cash y PnL realizado por símbolo; es el ejecutor
// del backtest y del modo paper en vivo.
type Paper struct {
	mu sync.Mutex

	cash    float64
	open    map[string]*paperLot // símbolo → lote abierto
	pnl     map[string]float64   // símbolo → PnL realizado
	history []domain.Command
}

type paperLot struct {
	side       domain.Side
	entryPrice float64
	shares     float64
}

// NewPaper crea un ejecutor de papel con el capital inicial dado.
func NewPaper(initialCash float64) *Paper {
	return &Paper{
		cash: initialCash,
		open: make(map[string]*paperLot),
		pnl:  make(map[string]float64),
	}
}

// Execute procesa un comando simulando el fill al precio indicado.
func (p *Paper) Execute(_ context.Context, cmd domain.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch cmd.Action {
	case domain.ActionEnter:
		if _, exists := p.open[cmd.Symbol]; exists {
			return fmt.Errorf("exec.Paper: %s already has an open lot", cmd.Symbol)
		}
		p.open[cmd.Symbol] = &paperLot{
			side:       cmd.Side,
			entryPrice: cmd.Price,
			shares:     cmd.Shares,
		}
		slog.Debug("paper fill: enter",
			"symbol", cmd.Symbol, "side", cmd.Side, "price", cmd.Price, "shares", cmd.Shares)

	case domain.ActionPartial, domain.ActionExit:
		lot, exists := p.open[cmd.Symbol]
		if !exists {
			return fmt.Errorf("exec.Paper: %s %s without open lot", cmd.Symbol, cmd.Action)
		}
		if cmd.Shares > lot.shares+1e-9 {
			return fmt.Errorf("exec.Paper: %s closes %.2f shares but only %.2f open", cmd.Symbol, cmd.Shares, lot.shares)
		}
		realized := lot.side.Favorable(cmd.Price, lot.entryPrice) * cmd.Shares
		p.pnl[cmd.Symbol] += realized
		p.cash += realized
		lot.shares -= cmd.Shares
		if cmd.Action == domain.ActionExit || lot.shares <= 1e-9 {
			delete(p.open, cmd.Symbol)
		}
		slog.Debug("paper fill: close",
			"symbol", cmd.Symbol, "action", cmd.Action, "price", cmd.Price,
			"shares", cmd.Shares, "realized", realized)

	default:
		return fmt.Errorf("exec.Paper: unknown action %q", cmd.Action)
	}

	p.history = append(p.history, cmd)
	return nil
}

// Cash devuelve el capital actual (inicial + PnL realizado).
func (p *Paper) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// PnL devuelve el PnL realizado de un símbolo.
func (p *Paper) PnL(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pnl[symbol]
}

// History devuelve una copia de los comandos procesados, en orden.
func (p *Paper) History() []domain.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Command, len(p.history))
	copy(out, p.history)
	return out
}
