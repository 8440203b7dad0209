package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Schema is portable between PostgreSQL and SQLite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		initial_cash TEXT NOT NULL,
		final_cash TEXT NOT NULL,
		total_return DOUBLE PRECISION NOT NULL,
		rebalance_months INTEGER NOT NULL,
		params TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_periods (
		run_id TEXT NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_cash TEXT NOT NULL,
		end_cash TEXT NOT NULL,
		period_return DOUBLE PRECISION NOT NULL,
		holdings TEXT NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_started ON backtest_runs (started_at)`,
}

type runRow struct {
	ID              string    `db:"id"`
	Kind            string    `db:"kind"`
	StartedAt       time.Time `db:"started_at"`
	StartDate       string    `db:"start_date"`
	EndDate         string    `db:"end_date"`
	InitialCash     string    `db:"initial_cash"`
	FinalCash       string    `db:"final_cash"`
	TotalReturn     float64   `db:"total_return"`
	RebalanceMonths int       `db:"rebalance_months"`
	Params          string    `db:"params"`
}

type periodRow struct {
	RunID     string  `db:"run_id"`
	Index     int     `db:"idx"`
	StartDate string  `db:"start_date"`
	EndDate   string  `db:"end_date"`
	StartCash string  `db:"start_cash"`
	EndCash   string  `db:"end_cash"`
	Return    float64 `db:"period_return"`
	Holdings  string  `db:"holdings"`
}

const runColumns = `id, kind, started_at, start_date, end_date, initial_cash, final_cash,
	total_return, rebalance_months, params`

// Store is a RunStore over any sqlx driver. Queries are written with ?
// placeholders and rebound for the driver.
type Store struct {
	db       *sqlx.DB
	timeout  time.Duration
	classify func(error) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTimeout bounds every statement.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithErrorClassifier maps driver errors, e.g. unique violations to
// ErrDuplicate.
func WithErrorClassifier(f func(error) error) StoreOption {
	return func(s *Store) { s.classify = f }
}

// NewStore wraps db.
func NewStore(db *sqlx.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, timeout: 5 * time.Second, classify: func(err error) error { return err }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run and its ledger in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO backtest_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID.String(), run.Kind, run.StartedAt, run.Start, run.End,
		run.InitialCash.String(), run.FinalCash.String(),
		run.TotalReturn, run.RebalanceMonths, string(run.Params))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, s.classify(err))
	}

	insertPeriod := s.db.Rebind(`
		INSERT INTO backtest_periods (run_id, idx, start_date, end_date, start_cash, end_cash, period_return, holdings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, p := range run.Periods {
		holdings, err := json.Marshal(p.Holdings)
		if err != nil {
			return fmt.Errorf("failed to marshal holdings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertPeriod,
			run.ID.String(), p.Index, p.Start, p.End,
			p.StartCash.String(), p.EndCash.String(), p.Return, string(holdings)); err != nil {
			return fmt.Errorf("failed to insert period %d: %w", p.Index, s.classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	log.Debug().Str("run_id", run.ID.String()).Int("periods", len(run.Periods)).Msg("Run stored")
	return nil
}

// GetRun loads a run with its ledger.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+runColumns+` FROM backtest_runs WHERE id = ?`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	run, err := row.toRun()
	if err != nil {
		return Run{}, err
	}

	var periods []periodRow
	err = s.db.SelectContext(ctx, &periods, s.db.Rebind(`
		SELECT run_id, idx, start_date, end_date, start_cash, end_cash, period_return, holdings
		FROM backtest_periods WHERE run_id = ? ORDER BY idx`), id.String())
	if err != nil {
		return Run{}, fmt.Errorf("failed to query periods of %s: %w", id, err)
	}
	for _, p := range periods {
		rec, err := p.toRecord()
		if err != nil {
			return Run{}, err
		}
		run.Periods = append(run.Periods, rec)
	}
	return run, nil
}

// ListRuns returns the newest runs first, without ledgers.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+runColumns+` FROM backtest_runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r runRow) toRun() (Run, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", r.ID, err)
	}
	initial, err := decimal.NewFromString(r.InitialCash)
	if err != nil {
		return Run{}, fmt.Errorf("bad initial cash %q: %w", r.InitialCash, err)
	}
	final, err := decimal.NewFromString(r.FinalCash)
	if err != nil {
		return Run{}, fmt.Errorf("bad final cash %q: %w", r.FinalCash, err)
	}
	run := Run{
		ID:              id,
		Kind:            r.Kind,
		StartedAt:       r.StartedAt.UTC(),
		Start:           r.StartDate,
		End:             r.EndDate,
		InitialCash:     initial,
		FinalCash:       final,
		TotalReturn:     r.TotalReturn,
		RebalanceMonths: r.RebalanceMonths,
	}
	if r.Params != "" {
		run.Params = json.RawMessage(r.Params)
	}
	return run, nil
}

func (p periodRow) toRecord() (PeriodRecord, error) {
	start, err := decimal.NewFromString(p.StartCash)
	if err != nil {
		return PeriodRecord{}, fmt.Errorf("bad start cash %q: %w", p.StartCash, err)
	}
	end, err := decimal.NewFromString(p.EndCash)
	if err != nil {
		return PeriodRecord{}, fmt.Errorf("bad end cash %q: %w", p.EndCash, err)
	}
	rec := PeriodRecord{
		Index:     p.Index,
		Start:     p.StartDate,
		End:       p.EndDate,
		StartCash: start,
		EndCash:   end,
		Return:    p.Return,
	}
	if err := json.Unmarshal([]byte(p.Holdings), &rec.Holdings); err != nil {
		return PeriodRecord{}, fmt.Errorf("bad holdings of period %d: %w", p.Index, err)
	}
	return rec, nil
}
