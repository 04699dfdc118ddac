package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
)

// CSVFeed implementa ports.BarFeed leyendo un archivo por símbolo:
// <dir>/<SYMBOL>.csv con columnas timestamp,open,high,low,close,volume.
// El timestamp acepta RFC3339 o epoch en segundos.
type CSVFeed struct {
	dir string
}

// NewCSVFeed crea un feed sobre el directorio dado.
func NewCSVFeed(dir string) *CSVFeed {
	return &CSVFeed{dir: dir}
}

// Bars devuelve los sub-bars del símbolo ordenados por timestamp.
func (f *CSVFeed) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	path := filepath.Join(f.dir, symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed.CSVFeed.Bars: open %q: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 6

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("feed.CSVFeed.Bars: parse %q: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for i, rec := range records {
		// Saltar la fila de cabecera si existe.
		if i == 0 && rec[0] == "timestamp" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar, err := parseBar(symbol, rec)
		if err != nil {
			return nil, fmt.Errorf("feed.CSVFeed.Bars: %q row %d: %w", path, i+1, err)
		}
		bars = append(bars, bar)
	}

	for i := 1; i < len(bars); i++ {
		if bars[i].Start.Before(bars[i-1].Start) {
			return nil, fmt.Errorf("feed.CSVFeed.Bars: %q not sorted at row %d", path, i+1)
		}
	}
	return bars, nil
}

func parseBar(symbol string, rec []string) (domain.Bar, error) {
	start, err := parseTimestamp(rec[0])
	if err != nil {
		return domain.Bar{}, err
	}

	vals := make([]float64, 5)
	for i, raw := range rec[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}

	return domain.Bar{
		Symbol: symbol,
		Start:  start,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
