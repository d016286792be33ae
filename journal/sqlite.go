package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/intraday/id"
)

// SQLite holds ledgers for many runs in one database file. Engines for
// different symbols share it through their own Run.
type SQLite struct {
	db   *sql.DB
	path string
}

// RunInfo describes one engine run (live session or backtest).
type RunInfo struct {
	ID       string
	Symbol   string
	Interval string
	Mode     string
	Created  time.Time
	Config   string
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; engines on other goroutines queue behind it
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, path: path}, nil
}

// NewRun registers a run and returns the Store its engine saves into. An
// empty info.ID gets a fresh ULID.
func (j *SQLite) NewRun(ctx context.Context, info RunInfo) (*Run, error) {
	if info.ID == "" {
		info.ID = id.New()
	}
	if info.Created.IsZero() {
		info.Created = time.Now().UTC()
	}
	if info.Mode == "" {
		info.Mode = "live"
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, symbol, interval, mode, created, config)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Symbol, info.Interval, info.Mode, info.Created, info.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{j: j, info: info}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// Run is the Store for a single run.
type Run struct {
	j    *SQLite
	info RunInfo
}

func (r *Run) Info() RunInfo { return r.info }

// Save replaces the run's trades with the snapshot in one transaction.
func (r *Run) Save(ctx context.Context, trades []Trade) error {
	if err := r.save(ctx, trades); err != nil {
		return &PersistenceError{Store: r.j.path + "#" + r.info.ID, Err: err}
	}
	return nil
}

func (r *Run) save(ctx context.Context, trades []Trade) error {
	tx, err := r.j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, r.info.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, type, price, timestamp, profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range trades {
		var profit sql.NullFloat64
		var reason sql.NullString
		if t.IsSell() {
			profit = sql.NullFloat64{Float64: t.Profit, Valid: true}
			reason = sql.NullString{String: string(t.Reason), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.info.ID, i, string(t.Type), t.Price, t.Time.UTC(), profit, reason); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close is a no-op; the database belongs to the SQLite journal.
func (r *Run) Close() error { return nil }
