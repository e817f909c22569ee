// Package sqlite keeps an append-only journal of computed result sets and an
// archive of closed candles.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"signalbot/internal/indicator"
	"signalbot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Journal is a single-connection SQLite writer.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

// ArchivedCandle is a closed candle tagged with its key.
type ArchivedCandle struct {
	Key    model.Key
	Candle model.Candle
}

// New opens path in WAL mode and creates the schema.
func New(path string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	j := &Journal{db: db, log: log.With(slog.String("component", "sqlite"))}
	j.log.Info("opened journal", slog.String("path", path))
	return j, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS result_sets (
			id          TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			interval    TEXT    NOT NULL,
			computed_at INTEGER NOT NULL,
			candles     INTEGER NOT NULL,
			version     INTEGER NOT NULL,
			source      TEXT    NOT NULL,
			data        TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_result_sets_key
			ON result_sets (symbol, interval, computed_at);

		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			interval  TEXT    NOT NULL,
			open_time INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL,
			PRIMARY KEY (symbol, interval, open_time)
		);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record appends rs. Recording the same ID twice is an error.
func (j *Journal) Record(ctx context.Context, rs *indicator.ResultSet) error {
	if rs == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO result_sets (id, symbol, interval, computed_at, candles, version, source, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.Symbol, rs.Interval, rs.ComputedAt.UnixMilli(),
		rs.Candles, int64(rs.Version), rs.Source, string(rs.JSON()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record %s: %w", rs.ID, err)
	}
	return nil
}

// Recent returns up to limit result sets for key, newest first.
func (j *Journal) Recent(ctx context.Context, key model.Key, limit int) ([]indicator.ResultSet, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT data FROM result_sets
		WHERE symbol = ? AND interval = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ?`, key.Symbol, key.Interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent %s: %w", key, err)
	}
	defer rows.Close()

	var out []indicator.ResultSet
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: recent %s: %w", key, err)
		}
		var rs indicator.ResultSet
		if err := json.Unmarshal([]byte(data), &rs); err != nil {
			return nil, fmt.Errorf("sqlite: decode result set: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep result sets per key and deletes the rest.
// It returns the number of rows removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM result_sets WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY symbol, interval ORDER BY computed_at DESC, id DESC
				) AS rn
				FROM result_sets
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	return res.RowsAffected()
}

// RunCandles archives closed candles from ch in batched transactions until
// ctx is cancelled or ch is closed. Open candles are ignored.
func (j *Journal) RunCandles(ctx context.Context, ch <-chan ArchivedCandle) {
	batch := make([]ArchivedCandle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertCandles(batch); err != nil {
			j.log.Error("candle batch insert failed", slog.Int("candles", len(batch)), slog.String("error", err.Error()))
		} else {
			j.log.Debug("candles archived", slog.Int("candles", len(batch)), slog.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ac, ok := <-ch:
			if !ok {
				flush()
				return
			}
			if !ac.Candle.Final {
				continue
			}
			batch = append(batch, ac)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (j *Journal) insertCandles(batch []ArchivedCandle) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, ac := range batch {
		c := ac.Candle
		if _, err := stmt.Exec(ac.Key.Symbol, ac.Key.Interval, c.Time.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Candles returns archived candles for key opened at or after since, oldest
// first. Every returned candle is final.
func (j *Journal) Candles(ctx context.Context, key model.Key, since time.Time) ([]model.Candle, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND interval = ? AND open_time >= ?
		ORDER BY open_time ASC`, key.Symbol, key.Interval, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite: candles %s: %w", key, err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var ms int64
		c := model.Candle{Final: true}
		if err := rows.Scan(&ms, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite: candles %s: %w", key, err)
		}
		c.Time = time.UnixMilli(ms).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
