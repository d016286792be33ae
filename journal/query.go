package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// ListRuns returns every run, oldest first.
func (j *SQLite) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, symbol, interval, mode, created, config
		FROM runs
		ORDER BY run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.ID, &ri.Symbol, &ri.Interval, &ri.Mode, &ri.Created, &ri.Config); err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun returns a single run by ID.
func (j *SQLite) GetRun(ctx context.Context, runID string) (RunInfo, error) {
	var ri RunInfo
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, symbol, interval, mode, created, config
		FROM runs
		WHERE run_id = ?`, runID).Scan(&ri.ID, &ri.Symbol, &ri.Interval, &ri.Mode, &ri.Created, &ri.Config)
	if err != nil {
		if err == sql.ErrNoRows {
			return RunInfo{}, fmt.Errorf("run %q not found", runID)
		}
		return RunInfo{}, err
	}
	return ri, nil
}

// LatestRun returns the newest run for symbol, interval and mode. Run IDs
// are ULIDs, so the highest ID is the newest run.
func (j *SQLite) LatestRun(ctx context.Context, symbol, interval, mode string) (RunInfo, bool, error) {
	var ri RunInfo
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, symbol, interval, mode, created, config
		FROM runs
		WHERE symbol = ? AND interval = ? AND mode = ?
		ORDER BY run_id DESC
		LIMIT 1`, symbol, interval, mode).Scan(&ri.ID, &ri.Symbol, &ri.Interval, &ri.Mode, &ri.Created, &ri.Config)
	if err == sql.ErrNoRows {
		return RunInfo{}, false, nil
	}
	if err != nil {
		return RunInfo{}, false, err
	}
	return ri, true, nil
}

// LoadTrades returns the ledger of a run in recorded order.
func (j *SQLite) LoadTrades(ctx context.Context, runID string) ([]Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT type, price, timestamp, profit, reason
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var (
			t      Trade
			side   string
			profit sql.NullFloat64
			reason sql.NullString
		)
		if err := rows.Scan(&side, &t.Price, &t.Time, &profit, &reason); err != nil {
			return nil, err
		}
		t.Type = Side(side)
		if profit.Valid {
			t.Profit = profit.Float64
		}
		if reason.Valid {
			t.Reason = ExitReason(reason.String)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
