package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resumen de la sesión en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.SessionReport) error {
	if len(report.Symbols) == 0 {
		fmt.Fprintf(c.out, "[%s] no symbols processed\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea por símbolo.
func (c *Console) printCompact(report domain.SessionReport) {
	fmt.Fprintf(c.out, "[%s → %s] %d symbols, %d trades, PnL $%.2f\n",
		report.From.Format("15:04"), report.To.Format("15:04"),
		len(report.Symbols), report.TotalTrades, report.TotalPnL)

	for _, sr := range report.Symbols {
		fmt.Fprintf(c.out, "  %-6s trades:%d W:%d L:%d pnl:$%.2f decisions:%d\n",
			sr.Symbol, len(sr.Positions), sr.Wins, sr.Losses, sr.RealizedPnL, sr.Decisions)
	}
}

// printFull imprime la tabla completa de trades más el desglose de salidas.
func (c *Console) printFull(report domain.SessionReport) {
	fmt.Fprintf(c.out, "\n=== SESSION %s → %s — %d trades, PnL $%.2f ===\n",
		report.From.Format("2006-01-02 15:04"), report.To.Format("15:04"),
		report.TotalTrades, report.TotalPnL)

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Side", "Entry", "Exit", "Shares", "PnL/share %", "Held", "Exit reason")

	for _, sr := range report.Symbols {
		for _, pos := range sr.Positions {
			pnlPct := pos.Side.Favorable(pos.ExitPrice, pos.EntryPrice) / pos.EntryPrice * 100
			table.Append(
				pos.Symbol,
				string(pos.Side),
				fmt.Sprintf("$%.2f", pos.EntryPrice),
				fmt.Sprintf("$%.2f", pos.ExitPrice),
				fmt.Sprintf("%.0f", pos.Shares),
				fmt.Sprintf("%+.2f%%", pnlPct),
				pos.ExitTime.Sub(pos.EntryTime).Round(time.Second).String(),
				string(pos.ExitReason),
			)
		}
	}
	table.Render()

	c.printExitBreakdown(report)
}

// printExitBreakdown agrega las salidas por motivo — el stall exit suele ser
// el mecanismo dominante de control de pérdidas y conviene verlo de un vistazo.
func (c *Console) printExitBreakdown(report domain.SessionReport) {
	totals := make(map[domain.ExitReason]int)
	for _, sr := range report.Symbols {
		for reason, n := range sr.ExitReasons {
			totals[reason] += n
		}
	}
	if len(totals) == 0 {
		return
	}

	reasons := make([]string, 0, len(totals))
	for r := range totals {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	fmt.Fprintf(c.out, "\n  Exits:")
	for _, r := range reasons {
		fmt.Fprintf(c.out, " %s:%d", r, totals[domain.ExitReason(r)])
	}
	fmt.Fprintln(c.out)
}
