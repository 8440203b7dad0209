package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/market"
)

var runID = uuid.MustParse("6f1c2a9e-4b7d-4c1e-9a55-0d2c3b4a5e6f")

func sampleResult() *rebalance.Result {
	return &rebalance.Result{
		RunID:           runID,
		Kind:            rebalance.KindInterval,
		StartedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Start:           market.MustDate("2024-01-01"),
		End:             market.MustDate("2024-02-29"),
		InitialCash:     10000,
		FinalCash:       10450.004,
		TotalReturn:     0.045,
		RebalanceMonths: 1,
		Periods: []rebalance.Period{
			{
				Index: 0, Start: market.MustDate("2024-01-01"), End: market.MustDate("2024-01-31"),
				StartCash: 10000, EndCash: 10200, Return: 0.02,
				Holdings: []rebalance.Holding{{Ticker: "AAA", Weight: 1, Cash: 10000, EndValue: 10200}},
			},
			{
				Index: 1, Start: market.MustDate("2024-02-01"), End: market.MustDate("2024-02-29"),
				StartCash: 10200, EndCash: 10450.004, Return: 0.0245,
				Holdings: []rebalance.Holding{{Ticker: "BBB", Weight: 1, Cash: 10200, EndValue: 10450.004}},
			},
		},
	}
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestFromResult(t *testing.T) {
	run, err := FromResult(sampleResult(), map[string]int{"months": 1})
	require.NoError(t, err)

	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "2024-01-01", run.Start)
	assert.Equal(t, "2024-02-29", run.End)
	assert.Equal(t, "10450", run.FinalCash.String())
	assert.JSONEq(t, `{"months":1}`, string(run.Params))
	require.Len(t, run.Periods, 2)
	assert.Equal(t, "10200", run.Periods[1].StartCash.String())
	assert.Equal(t, "BBB", run.Periods[1].Holdings[0].Ticker)
}

func TestSaveRun(t *testing.T) {
	store, mock := newMock(t)
	run, err := FromResult(sampleResult(), nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO backtest_runs .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)`).
		WithArgs(runID.String(), "interval", sqlmock.AnyArg(), "2024-01-01", "2024-02-29", "10000", "10450", 0.045, 1, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO backtest_periods`).
		WithArgs(runID.String(), 0, "2024-01-01", "2024-01-31", "10000", "10200", 0.02, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO backtest_periods`).
		WithArgs(runID.String(), 1, "2024-02-01", "2024-02-29", "10200", "10450", 0.0245, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackAndClassifies(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("duplicate key value")
	store.classify = func(err error) error { return ErrDuplicate }

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO backtest_runs`).WillReturnError(boom)
	mock.ExpectRollback()

	run, _ := FromResult(sampleResult(), nil)
	err := store.SaveRun(context.Background(), run)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	store, mock := newMock(t)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	holdings, _ := json.Marshal([]rebalance.Holding{{Ticker: "AAA", Weight: 1, Cash: 10000, EndValue: 10200}})

	mock.ExpectQuery(`SELECT .* FROM backtest_runs WHERE id = \$1`).
		WithArgs(runID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "kind", "started_at", "start_date", "end_date", "initial_cash", "final_cash",
			"total_return", "rebalance_months", "params",
		}).AddRow(runID.String(), "portfolio", started, "2024-01-01", "2024-01-31", "10000", "10200", 0.02, 1, `{"top_n":2}`))
	mock.ExpectQuery(`FROM backtest_periods WHERE run_id = \$1 ORDER BY idx`).
		WithArgs(runID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "idx", "start_date", "end_date", "start_cash", "end_cash", "period_return", "holdings",
		}).AddRow(runID.String(), 0, "2024-01-01", "2024-01-31", "10000", "10200", 0.02, string(holdings)))

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "portfolio", run.Kind)
	assert.Equal(t, started, run.StartedAt)
	assert.Equal(t, "10200", run.FinalCash.String())
	assert.JSONEq(t, `{"top_n":2}`, string(run.Params))
	require.Len(t, run.Periods, 1)
	assert.Equal(t, "AAA", run.Periods[0].Holdings[0].Ticker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`FROM backtest_runs WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRun(context.Background(), runID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{
		"id", "kind", "started_at", "start_date", "end_date", "initial_cash", "final_cash",
		"total_return", "rebalance_months", "params",
	}
	other := uuid.New()
	mock.ExpectQuery(`ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(other.String(), "buyhold", time.Now(), "2024-01-01", "2024-12-31", "10000", "11000", 0.1, 0, "").
			AddRow(runID.String(), "interval", time.Now(), "2024-01-01", "2024-12-31", "10000", "10500", 0.05, 3, ""))

	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, other, runs[0].ID)
	assert.Nil(t, runs[0].Params)
	assert.Equal(t, 3, runs[1].RebalanceMonths)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	store, mock := newMock(t)
	for range Schema {
		mock.ExpectExec(`CREATE (TABLE|INDEX) IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
