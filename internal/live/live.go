package live

// live.go — driver en vivo: un goroutine por símbolo, cada uno con su propio
// Monitor y sus propios canales. No hay estado mutable compartido entre
// símbolos, así que no hace falta locking. Los timeouts del engine se miden
// con los timestamps del feed, igual que en replay.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	"github.com/alejandrodnm/pivotbot/internal/engine"
	"github.com/alejandrodnm/pivotbot/internal/ports"
)

const tickBuffer = 2048

// Driver conecta el stream de mercado con un Monitor por símbolo.
type Driver struct {
	cfg    engine.Config
	stream ports.MarketStream
	levels ports.LevelProvider
	exec   ports.OrderExecutor
	store  ports.DecisionStorage // puede ser nil
}

// New crea un Driver con las dependencias inyectadas.
func New(cfg engine.Config, stream ports.MarketStream, levels ports.LevelProvider, exec ports.OrderExecutor, store ports.DecisionStorage) *Driver {
	return &Driver{cfg: cfg, stream: stream, levels: levels, exec: exec, store: store}
}

// worker es el loop de un símbolo.
type worker struct {
	monitor   *engine.Monitor
	ticks     chan domain.Tick
	bars      chan domain.Bar
	lastPrice float64
	lastTime  time.Time
}

// Run arranca el stream, el demultiplexor y un worker por símbolo, y bloquea
// hasta que el contexto se cancele o el feed falle.
func (d *Driver) Run(ctx context.Context, symbols []string) error {
	levelsBySymbol, err := d.levels.FetchLevels(ctx, symbols)
	if err != nil {
		return fmt.Errorf("live.Run: fetch levels: %w", err)
	}

	workers := make(map[string]*worker)
	for _, symbol := range symbols {
		levels, ok := levelsBySymbol[symbol]
		if !ok || len(levels) == 0 {
			slog.Warn("live: no levels for symbol, skipping", "symbol", symbol)
			continue
		}
		monitor, err := engine.NewMonitor(d.cfg, symbol, levels)
		if err != nil {
			return fmt.Errorf("live.Run: monitor %s: %w", symbol, err)
		}
		workers[symbol] = &worker{
			monitor: monitor,
			ticks:   make(chan domain.Tick, tickBuffer),
			bars:    make(chan domain.Bar, 64),
		}
	}
	if len(workers) == 0 {
		return fmt.Errorf("live.Run: no symbols with levels")
	}

	slog.Info("live: starting", "symbols", len(workers))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.stream.Run(ctx)
	})

	g.Go(func() error {
		return d.demux(ctx, workers)
	})

	for _, w := range workers {
		w := w
		g.Go(func() error {
			return d.runWorker(ctx, w)
		})
	}

	return g.Wait()
}

// demux enruta el stream global hacia los canales de cada símbolo. Los bars
// nunca se descartan; un tick se descarta (con warning) si el buffer del
// símbolo está lleno — solo degrada la precisión del CVD de ese candle.
func (d *Driver) demux(ctx context.Context, workers map[string]*worker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-d.stream.Ticks():
			if !ok {
				return fmt.Errorf("live.demux: tick stream closed")
			}
			w, found := workers[t.Symbol]
			if !found {
				continue
			}
			select {
			case w.ticks <- t:
			default:
				slog.Warn("live: tick buffer full, dropping", "symbol", t.Symbol)
			}
		case b, ok := <-d.stream.Bars():
			if !ok {
				return fmt.Errorf("live.demux: bar stream closed")
			}
			w, found := workers[b.Symbol]
			if !found {
				continue
			}
			select {
			case w.bars <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// runWorker procesa los eventos de un símbolo en orden. Al cancelarse el
// contexto, aplana la posición abierta al último precio conocido.
func (d *Driver) runWorker(ctx context.Context, w *worker) error {
	for {
		select {
		case <-ctx.Done():
			d.flatten(w)
			return ctx.Err()
		case t := <-w.ticks:
			w.lastPrice = t.Price
			w.lastTime = t.Time
			d.apply(w.monitor.OnTick(t))
		case b := <-w.bars:
			w.lastPrice = b.Close
			w.lastTime = b.Start.Add(d.cfg.SubBarDuration)
			d.apply(w.monitor.OnBar(b))
		}
	}
}

// flatten cierra la posición del símbolo al apagar el driver.
func (d *Driver) flatten(w *worker) {
	if w.lastPrice == 0 {
		return
	}
	// El contexto del driver ya está cancelado; usar uno limpio para drenar.
	up := w.monitor.EndSession(w.lastPrice, w.lastTime)
	d.applyCtx(context.Background(), up)
}

// apply procesa un Update con un contexto de trabajo nuevo por evento.
func (d *Driver) apply(up engine.Update) {
	d.applyCtx(context.Background(), up)
}

func (d *Driver) applyCtx(ctx context.Context, up engine.Update) {
	for _, cmd := range up.Commands {
		if err := d.exec.Execute(ctx, cmd); err != nil {
			slog.Error("live: execute failed", "action", cmd.Action, "symbol", cmd.Symbol, "err", err)
		}
	}
	if d.store == nil {
		return
	}
	if len(up.Decisions) > 0 {
		if err := d.store.SaveDecisions(ctx, up.Decisions); err != nil {
			slog.Warn("live: storage error", "err", err)
		}
	}
	if len(up.PivotEvents) > 0 {
		if err := d.store.SavePivotEvents(ctx, up.PivotEvents); err != nil {
			slog.Warn("live: storage error", "err", err)
		}
	}
	for _, pos := range up.ClosedPositions {
		if err := d.store.SavePosition(ctx, pos); err != nil {
			slog.Warn("live: storage error", "err", err)
		}
	}
}
