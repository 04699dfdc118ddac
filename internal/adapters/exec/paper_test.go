package exec

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cmd(action domain.Action, side domain.Side, price, shares float64) domain.Command {
	return domain.Command{
		ID:     "test",
		Symbol: "AAPL",
		Side:   side,
		Action: action,
		Price:  price,
		Shares: shares,
		At:     time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
}

func TestPaper_LongRoundTrip(t *testing.T) {
	p := NewPaper(10_000)
	ctx := context.Background()

	require.NoError(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Long, 100, 100)))
	require.NoError(t, p.Execute(ctx, cmd(domain.ActionPartial, domain.Long, 101, 50)))
	require.NoError(t, p.Execute(ctx, cmd(domain.ActionExit, domain.Long, 102, 50)))

	// 50 × $1 + 50 × $2
	assert.InDelta(t, 150.0, p.PnL("AAPL"), 1e-9)
	assert.InDelta(t, 10_150.0, p.Cash(), 1e-9)
	assert.Len(t, p.History(), 3)
}

func TestPaper_ShortRoundTrip(t *testing.T) {
	p := NewPaper(10_000)
	ctx := context.Background()

	require.NoError(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Short, 100, 100)))
	require.NoError(t, p.Execute(ctx, cmd(domain.ActionExit, domain.Short, 99, 100)))

	assert.InDelta(t, 100.0, p.PnL("AAPL"), 1e-9)
}

func TestPaper_RejectsInconsistentCommands(t *testing.T) {
	p := NewPaper(10_000)
	ctx := context.Background()

	assert.Error(t, p.Execute(ctx, cmd(domain.ActionExit, domain.Long, 100, 100)), "exit without a lot")
	assert.Error(t, p.Execute(ctx, cmd(domain.ActionPartial, domain.Long, 100, 10)), "partial without a lot")

	require.NoError(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Long, 100, 100)))
	assert.Error(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Long, 101, 100)), "double entry on one symbol")
	assert.Error(t, p.Execute(ctx, cmd(domain.ActionPartial, domain.Long, 101, 150)), "closing more than open")
}

func TestPaper_PartialExhaustsLot(t *testing.T) {
	p := NewPaper(10_000)
	ctx := context.Background()

	require.NoError(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Long, 100, 100)))
	require.NoError(t, p.Execute(ctx, cmd(domain.ActionPartial, domain.Long, 101, 100)))

	// The lot is fully scaled out: the symbol can enter again.
	assert.NoError(t, p.Execute(ctx, cmd(domain.ActionEnter, domain.Long, 101, 100)))
}
