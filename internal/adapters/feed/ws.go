package feed

// ws.go — stream de mercado por websocket. El servidor publica trades
// individuales; este adapter los reemite como ticks y además ensambla los
// sub-bars de la duración configurada. Si la conexión se cae, reintenta con
// backoff; mientras tanto el core simplemente no avanza (nunca se inventan
// datos sustitutos).

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 30 * time.Second
	wsMaxBackoff       = 30 * time.Second
)

// WSStream implementa ports.MarketStream sobre gorilla/websocket.
type WSStream struct {
	url     string
	symbols []string
	subBar  time.Duration

	ticks chan domain.Tick
	bars  chan domain.Bar

	builders map[string]*barBuilder
}

// NewWSStream crea el stream para los símbolos dados. subBar es la duración
// de los sub-bars que el adapter ensambla a partir de los trades.
func NewWSStream(url string, symbols []string, subBar time.Duration) *WSStream {
	return &WSStream{
		url:      url,
		symbols:  symbols,
		subBar:   subBar,
		ticks:    make(chan domain.Tick, 4096),
		bars:     make(chan domain.Bar, 256),
		builders: make(map[string]*barBuilder),
	}
}

// Ticks devuelve el canal de trades individuales.
func (s *WSStream) Ticks() <-chan domain.Tick { return s.ticks }

// Bars devuelve el canal de sub-bars cerrados.
func (s *WSStream) Bars() <-chan domain.Bar { return s.bars }

// Run conecta, se suscribe y bombea mensajes hasta que el contexto se cancele.
// Reintenta con backoff exponencial ante desconexiones.
func (s *WSStream) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.connectAndPump(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("feed: websocket disconnected, retrying", "err", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

// tradeMessage es el wire format del feed de trades.
type tradeMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"ts"` // epoch millis
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side,omitempty"`
}

type subscribeMessage struct {
	Method  string   `json:"method"`
	Streams []string `json:"streams"`
}

func (s *WSStream) connectAndPump(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("feed.WSStream: dial %q: %w", s.url, err)
	}
	defer conn.Close()

	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = sym + "@trades"
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(subscribeMessage{Method: "SUBSCRIBE", Streams: streams}); err != nil {
		return fmt.Errorf("feed.WSStream: subscribe: %w", err)
	}
	slog.Info("feed: subscribed", "url", s.url, "symbols", len(s.symbols))

	// Ping en segundo plano para mantener viva la conexión.
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(pingCtx, conn)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed.WSStream: read: %w", err)
		}

		var msg tradeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("feed: unparseable message", "err", err)
			continue
		}
		if msg.Type != "trade" || msg.Symbol == "" {
			continue
		}

		tick := domain.Tick{
			Symbol: msg.Symbol,
			Time:   time.UnixMilli(msg.Timestamp).UTC(),
			Price:  msg.Price,
			Size:   msg.Size,
			Side:   domain.TickSide(msg.Side),
		}

		select {
		case s.ticks <- tick:
		default:
			slog.Warn("feed: tick channel full, dropping", "symbol", tick.Symbol)
		}

		if bar := s.buildBar(tick); bar != nil {
			select {
			case s.bars <- *bar:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *WSStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// barBuilder acumula trades en el sub-bar en curso de un símbolo.
type barBuilder struct {
	bar domain.Bar
}

// buildBar añade el tick al sub-bar en curso y devuelve el bar anterior si el
// tick abrió uno nuevo. Los bordes de bar se alinean al reloj del feed
// (truncado a la duración del sub-bar), no al reloj local.
func (s *WSStream) buildBar(t domain.Tick) *domain.Bar {
	start := t.Time.Truncate(s.subBar)

	b, ok := s.builders[t.Symbol]
	if !ok {
		s.builders[t.Symbol] = &barBuilder{bar: newBar(t, start)}
		return nil
	}

	if start.After(b.bar.Start) {
		closed := b.bar
		b.bar = newBar(t, start)
		return &closed
	}

	b.bar.Close = t.Price
	b.bar.Volume += t.Size
	if t.Price > b.bar.High {
		b.bar.High = t.Price
	}
	if t.Price < b.bar.Low {
		b.bar.Low = t.Price
	}
	return nil
}

func newBar(t domain.Tick, start time.Time) domain.Bar {
	return domain.Bar{
		Symbol: t.Symbol,
		Start:  start,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Size,
	}
}
