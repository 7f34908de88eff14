// Package results persists backtest runs and their per-period ledgers in
// SQLite.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/newthinker/statarb/internal/backtest"
	"github.com/newthinker/statarb/internal/core"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	params        TEXT NOT NULL,
	instruments   INTEGER NOT NULL,
	periods       INTEGER NOT NULL,
	final_value   REAL,
	total_return  REAL,
	ann_return    REAL,
	ann_vol       REAL,
	sharpe        REAL,
	max_drawdown  REAL,
	total_cost    REAL,
	turnover      REAL
);
CREATE TABLE IF NOT EXISTS ledger (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	period    INTEGER NOT NULL,
	cash      REAL NOT NULL,
	value     REAL,
	cost      REAL NOT NULL,
	turnover  REAL NOT NULL,
	opened    INTEGER NOT NULL,
	PRIMARY KEY (run_id, period)
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

// Run is the summary row of a stored backtest.
type Run struct {
	ID          string         `json:"id"`
	Strategy    string         `json:"strategy"`
	CreatedAt   time.Time      `json:"created_at"`
	Params      string         `json:"params"` // JSON of the backtest configuration
	Instruments int            `json:"instruments"`
	Stats       backtest.Stats `json:"stats"`
}

// LedgerRow is one period of a stored run. Value is nil before the run
// starts.
type LedgerRow struct {
	Period   int      `json:"period"`
	Cash     float64  `json:"cash"`
	Value    *float64 `json:"value"`
	Cost     float64  `json:"cost"`
	Turnover float64  `json:"turnover"`
	Opened   bool     `json:"opened"`
}

// Ledger converts a result into storable rows.
func Ledger(r *backtest.Result) []LedgerRow {
	rows := make([]LedgerRow, r.Len())
	for t, key := range r.Periods {
		row := LedgerRow{
			Period:   key,
			Cash:     r.Cash[t],
			Cost:     r.Cost[t],
			Turnover: r.Turnover[t],
			Opened:   r.Opened[t],
		}
		if v := r.Value[t]; !math.IsNaN(v) {
			row.Value = &v
		}
		rows[t] = row
	}
	return rows
}

// Store is a SQLite-backed run repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its ledger atomically, replacing any previous
// run with the same ID.
func (s *Store) SaveRun(ctx context.Context, run Run, ledger []LedgerRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("replacing run %s: %w", run.ID, err)
	}
	st := run.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, created_at, params, instruments, periods,
			final_value, total_return, ann_return, ann_vol, sharpe, max_drawdown, total_cost, turnover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.CreatedAt.UnixMilli(), run.Params, run.Instruments, st.Periods,
		nullable(st.FinalValue), nullable(st.TotalReturn), nullable(st.AnnualizedReturn),
		nullable(st.AnnualizedVolatility), nullable(st.SharpeRatio), nullable(st.MaxDrawdown),
		nullable(st.TotalCost), nullable(st.Turnover),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger (run_id, period, cash, value, cost, turnover, opened)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range ledger {
		var value any
		if row.Value != nil {
			value = *row.Value
		}
		if _, err := stmt.ExecContext(ctx, run.ID, row.Period, row.Cash, value, row.Cost, row.Turnover, row.Opened); err != nil {
			return fmt.Errorf("inserting ledger %s/%d: %w", run.ID, row.Period, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, strategy, created_at, params, instruments, periods,
	final_value, total_return, ann_return, ann_vol, sharpe, max_drawdown, total_cost, turnover`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var created int64
	var final, total, annRet, annVol, sharpe, dd, cost, turnover sql.NullFloat64
	err := row.Scan(&run.ID, &run.Strategy, &created, &run.Params, &run.Instruments, &run.Stats.Periods,
		&final, &total, &annRet, &annVol, &sharpe, &dd, &cost, &turnover)
	if err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.UnixMilli(created).UTC()
	run.Stats.FinalValue = final.Float64
	run.Stats.TotalReturn = total.Float64
	run.Stats.AnnualizedReturn = annRet.Float64
	run.Stats.AnnualizedVolatility = annVol.Float64
	run.Stats.SharpeRatio = sharpe.Float64
	run.Stats.MaxDrawdown = dd.Float64
	run.Stats.TotalCost = cost.Float64
	run.Stats.Turnover = turnover.Float64
	return run, nil
}

// GetRun returns a stored run and its ledger in period order.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, []LedgerRow, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("run %q", id))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT period, cash, value, cost, turnover, opened
		FROM ledger WHERE run_id = ? ORDER BY period`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading ledger %s: %w", id, err)
	}
	defer rows.Close()

	var ledger []LedgerRow
	for rows.Next() {
		var row LedgerRow
		var value sql.NullFloat64
		if err := rows.Scan(&row.Period, &row.Cash, &value, &row.Cost, &row.Turnover, &row.Opened); err != nil {
			return nil, nil, err
		}
		if value.Valid {
			v := value.Float64
			row.Value = &v
		}
		ledger = append(ledger, row)
	}
	return &run, ledger, rows.Err()
}

// ListRuns returns the most recent runs first, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// nullable stores non-finite statistics as NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
