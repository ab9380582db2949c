package storage

// journal.go — histórico consultable de la sesión.
//
// Estrategia:
//   - `samples`: una fila por ciclo (precio, índice, sentimiento), se opere o no.
//     Sustituye al CSV plano: permite el comando report y análisis posteriores.
//   - `trades`: una fila por swap contabilizado. Se vacía en cada reset de sesión;
//     las muestras se conservan porque describen el mercado, no la sesión.
//   - Timestamps como INTEGER (unix ms, UTC) para ordenar y filtrar sin parseo.
//   - Prune automático al arrancar: samples > 90d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Observación de mercado por ciclo
CREATE TABLE IF NOT EXISTS samples (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at  INTEGER NOT NULL,
    price     REAL    NOT NULL,
    fg_index  INTEGER NOT NULL,
    sentiment TEXT    NOT NULL
);

-- Swaps contabilizados en la sesión actual
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,
    executed_at   INTEGER NOT NULL,
    direction     TEXT    NOT NULL,
    asset_amount  REAL    NOT NULL,
    stable_amount REAL    NOT NULL,
    price         REAL    NOT NULL,
    sentiment     TEXT    NOT NULL,
    bundle_id     TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_samples_at ON samples(taken_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_at  ON trades(executed_at);
`

const retentionSamples = 90 * 24 * time.Hour

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia muestras antiguas.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveSample registra la observación de un ciclo.
func (j *SQLiteJournal) SaveSample(ctx context.Context, s domain.Sample) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO samples (taken_at, price, fg_index, sentiment) VALUES (?, ?, ?, ?)`,
		s.Timestamp.UTC().UnixMilli(), s.Price, s.Index, string(s.Sentiment),
	); err != nil {
		return fmt.Errorf("storage.SaveSample: insert: %w", err)
	}
	return nil
}

// SaveTrade registra un trade. Reescribir el mismo ID es idempotente.
func (j *SQLiteJournal) SaveTrade(ctx context.Context, t domain.Trade) error {
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, executed_at, direction, asset_amount, stable_amount, price, sentiment, bundle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		t.ID,
		t.Timestamp.UTC().UnixMilli(),
		string(t.Direction),
		t.AssetAmount,
		t.StableAmount,
		t.Price,
		string(t.Sentiment),
		t.BundleID,
	); err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// RecentSamples devuelve las últimas limit muestras, la más reciente primero.
func (j *SQLiteJournal) RecentSamples(ctx context.Context, limit int) ([]domain.Sample, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT taken_at, price, fg_index, sentiment
		FROM samples
		ORDER BY taken_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentSamples: query: %w", err)
	}
	defer rows.Close()

	samples := []domain.Sample{}
	for rows.Next() {
		var s domain.Sample
		var takenAt int64
		var sentiment string
		if err := rows.Scan(&takenAt, &s.Price, &s.Index, &sentiment); err != nil {
			return nil, fmt.Errorf("storage.RecentSamples: scan row: %w", err)
		}
		s.Timestamp = time.UnixMilli(takenAt).UTC()
		s.Sentiment = domain.Sentiment(sentiment)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Trades devuelve todos los trades de la sesión en orden cronológico.
func (j *SQLiteJournal) Trades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, executed_at, direction, asset_amount, stable_amount, price, sentiment, bundle_id
		FROM trades
		ORDER BY executed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		var t domain.Trade
		var executedAt int64
		var dir, sentiment string
		if err := rows.Scan(&t.ID, &executedAt, &dir, &t.AssetAmount, &t.StableAmount, &t.Price, &sentiment, &t.BundleID); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		t.Timestamp = time.UnixMilli(executedAt).UTC()
		t.Direction = domain.Direction(dir)
		t.Sentiment = domain.Sentiment(sentiment)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ClearTrades vacía el histórico de trades (reset de sesión).
func (j *SQLiteJournal) ClearTrades(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("storage.ClearTrades: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// pruneOld elimina muestras antiguas para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionSamples).UnixMilli()
	j.db.ExecContext(ctx, `DELETE FROM samples WHERE taken_at < ?`, cutoff)
}
