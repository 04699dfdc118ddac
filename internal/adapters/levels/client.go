package levels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

const (
	// El scanner de niveles expone ~10 req/s; nos quedamos al 60%.
	levelsRatePerSec = 6

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client del feed de niveles con rate limiting y retries.
// Los niveles (pivot + targets por símbolo) los calcula un scanner externo;
// este adapter solo los consume.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client contra el base URL dado.
func NewClient(base string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(levelsRatePerSec, 3),
	}
}

// levelPayload es el wire format del scanner de niveles.
type levelPayload struct {
	Symbol  string    `json:"symbol"`
	Side    string    `json:"side"`
	Pivot   float64   `json:"pivot"`
	Targets []float64 `json:"targets"`
}

// FetchLevels implementa ports.LevelProvider.
func (c *Client) FetchLevels(ctx context.Context, symbols []string) (map[string][]domain.LevelSet, error) {
	u := fmt.Sprintf("%s/levels?symbols=%s", c.base, url.QueryEscape(strings.Join(symbols, ",")))

	var payload []levelPayload
	if err := c.get(ctx, u, &payload); err != nil {
		return nil, fmt.Errorf("levels.FetchLevels: %w", err)
	}

	out := make(map[string][]domain.LevelSet, len(symbols))
	for _, p := range payload {
		side := domain.Side(p.Side)
		if side != domain.Long && side != domain.Short {
			slog.Warn("levels: unknown side, skipping", "symbol", p.Symbol, "side", p.Side)
			continue
		}
		ls := domain.LevelSet{Symbol: p.Symbol, Side: side, Pivot: p.Pivot}
		for i, t := range p.Targets {
			if i >= len(ls.Targets) {
				break
			}
			ls.Targets[i] = t
		}
		out[p.Symbol] = append(out[p.Symbol], ls)
	}
	return out, nil
}

// get hace un GET con rate limiting y retries con backoff exponencial.
func (c *Client) get(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("levels API retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unreachable")
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait * time.Duration(1<<attempt)
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
