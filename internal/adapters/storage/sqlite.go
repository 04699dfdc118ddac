package storage

// sqlite.go — registro de decisiones para análisis posterior.
//
// Estrategia:
//   - `decisions`: una fila por evaluación de breakout, con el JSON de los
//     filtros (valor medido + umbral + motivo de cada check).
//   - `pivot_updates`: una fila por ajuste de pivot, para auditar que el
//     pivot nunca se afloja dentro de una sesión.
//   - `positions`: una fila por posición cerrada con su exit reason.
//   - Prune automático al arrancar: todo lo más viejo que 30 días.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/pivotbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id             TEXT PRIMARY KEY,
    symbol         TEXT     NOT NULL,
    side           TEXT     NOT NULL,
    at             DATETIME NOT NULL,
    state          TEXT     NOT NULL,
    classification TEXT,
    volume_ratio   REAL     NOT NULL DEFAULT 0,
    candle_size    REAL     NOT NULL DEFAULT 0,
    path           TEXT,
    entered        INTEGER  NOT NULL DEFAULT 0,
    reason         TEXT,
    filters_json   TEXT
);

CREATE TABLE IF NOT EXISTS pivot_updates (
    symbol    TEXT     NOT NULL,
    side      TEXT     NOT NULL,
    old_pivot REAL     NOT NULL,
    new_pivot REAL     NOT NULL,
    trigger   TEXT     NOT NULL,
    at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id          TEXT PRIMARY KEY,
    symbol      TEXT     NOT NULL,
    side        TEXT     NOT NULL,
    entry_price REAL     NOT NULL,
    exit_price  REAL     NOT NULL,
    shares      REAL     NOT NULL,
    pivot       REAL     NOT NULL,
    entry_time  DATETIME NOT NULL,
    exit_time   DATETIME NOT NULL,
    exit_reason TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, at DESC);
CREATE INDEX IF NOT EXISTS idx_pivots_symbol    ON pivot_updates(symbol, at DESC);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol, exit_time DESC);
`

const retention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.DecisionStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveDecisions persiste los registros de evaluación en una transacción.
func (s *SQLiteStorage) SaveDecisions(ctx context.Context, records []*domain.DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveDecisions: begin: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		filters, err := json.Marshal(rec.Filters)
		if err != nil {
			return fmt.Errorf("storage.SaveDecisions: marshal filters: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO decisions
			(id, symbol, side, at, state, classification, volume_ratio, candle_size, path, entered, reason, filters_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Symbol, string(rec.Side), rec.At.UTC(), string(rec.State),
			string(rec.Classification), rec.VolumeRatio, rec.CandleSizePct,
			string(rec.Path), boolToInt(rec.Entered), rec.Reason, string(filters),
		)
		if err != nil {
			return fmt.Errorf("storage.SaveDecisions: insert: %w", err)
		}
	}
	return tx.Commit()
}

// SavePivotEvents persiste los ajustes de pivot.
func (s *SQLiteStorage) SavePivotEvents(ctx context.Context, events []domain.PivotUpdateEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePivotEvents: begin: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pivot_updates (symbol, side, old_pivot, new_pivot, trigger, at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ev.Symbol, string(ev.Side), ev.OldPivot, ev.NewPivot, string(ev.Trigger), ev.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("storage.SavePivotEvents: insert: %w", err)
		}
	}
	return tx.Commit()
}

// SavePosition persiste una posición cerrada.
func (s *SQLiteStorage) SavePosition(ctx context.Context, pos *domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions
		(id, symbol, side, entry_price, exit_price, shares, pivot, entry_time, exit_time, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.ID, pos.Symbol, string(pos.Side), pos.EntryPrice, pos.ExitPrice,
		pos.Shares, pos.PivotAtEntry, pos.EntryTime.UTC(), pos.ExitTime.UTC(),
		string(pos.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: insert: %w", err)
	}
	return nil
}

// Decisions devuelve las decisiones de un símbolo en el rango dado, para las
// herramientas de análisis.
func (s *SQLiteStorage) Decisions(ctx context.Context, symbol string, from, to time.Time) ([]*domain.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, at, state, classification, volume_ratio, candle_size, path, entered, reason, filters_json
		FROM decisions WHERE symbol = ? AND at >= ? AND at <= ? ORDER BY at`,
		symbol, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Decisions: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var side, state, class, path, filters string
		var entered int
		if err := rows.Scan(&rec.ID, &rec.Symbol, &side, &rec.At, &state, &class,
			&rec.VolumeRatio, &rec.CandleSizePct, &path, &entered, &rec.Reason, &filters); err != nil {
			return nil, fmt.Errorf("storage.Decisions: scan: %w", err)
		}
		rec.Side = domain.Side(side)
		rec.State = domain.MonitorState(state)
		rec.Classification = domain.Classification(class)
		rec.Path = domain.EntryPath(path)
		rec.Entered = entered != 0
		if filters != "" {
			if err := json.Unmarshal([]byte(filters), &rec.Filters); err != nil {
				return nil, fmt.Errorf("storage.Decisions: unmarshal filters: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close cierra la conexión limpiamente.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld borra filas más viejas que la retención. Best-effort.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retention).UTC()
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM pivot_updates WHERE at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM positions WHERE exit_time < ?`, cutoff)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
