package db

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestDB_NotAvailable(t *testing.T) {
	var empty DB
	assert.Error(t, empty.Ping(context.Background()))

	_, err := NewCandleRepository(&empty, "").Load(context.Background(), "X", day(1), day(2))
	assert.Error(t, err)

	_, err = New(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestCandleRepository_Load(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCandleRepository(database, "")
	assert.Equal(t, "1d", repo.Interval())

	score := 0.8
	rows := pgxmock.NewRows([]string{"open_time", "open", "high", "low", "close", "volume", "score"}).
		AddRow(day(1), 10.0, 11.0, 9.0, 10.5, 1000.0, (*float64)(nil)).
		AddRow(day(2), 10.5, 12.0, 10.0, 11.5, 1200.0, &score)

	mock.ExpectQuery("SELECT open_time, open, high, low, close, volume, score FROM candlesticks").
		WithArgs("600519", "1d", day(1), day(31)).
		WillReturnRows(rows)

	candles, err := repo.Load(context.Background(), "600519", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, day(1), candles[0].Date)
	assert.Nil(t, candles[0].Score)
	assert.Equal(t, 11.5, candles[1].Close)
	require.NotNil(t, candles[1].Score)
	assert.Equal(t, 0.8, *candles[1].Score)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleRepository_LoadError(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery("SELECT open_time").WillReturnError(errors.New("connection reset"))

	_, err := NewCandleRepository(database, "1d").Load(context.Background(), "600519", day(1), day(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCandleRepository_Save(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCandleRepository(database, "1d")

	candles := []backtest.Candle{
		{Date: day(1), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Date: day(2), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 1200},
	}

	mock.ExpectBegin()
	for _, c := range candles {
		mock.ExpectExec("INSERT INTO candlesticks").
			WithArgs("600519", "1d", c.Date, c.Open, c.High, c.Low, c.Close, c.Volume, c.Score).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	n, err := repo.Save(context.Background(), "600519", candles)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleRepository_SaveRollsBack(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO candlesticks").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := NewCandleRepository(database, "1d").Save(context.Background(), "600519",
		[]backtest.Candle{{Date: day(1), Open: 1, High: 1, Low: 1, Close: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyPoolRepository_ActivePool(t *testing.T) {
	database, mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"id", "strategy_name", "strategy_class", "param_configs"}).
		AddRow(int64(1), "Hold", "buy_and_hold", "{}").
		AddRow(int64(2), "EMA", "ema_cross", `{"short":[5,10]}`)

	mock.ExpectQuery("SELECT id, strategy_name, strategy_class, param_configs FROM strategy_pool ORDER BY id ASC").
		WillReturnRows(rows)

	entries, err := NewStrategyPoolRepository(database).ActivePool(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(2), entries[1].ID)
	assert.Equal(t, "ema_cross", entries[1].Class)

	grid, err := pool.ParseParamGrid(entries[1].ParamConfigs)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Size())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyPoolRepository_AddCanonicalizes(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery("INSERT INTO strategy_pool").
		WithArgs("ema_cross", "ema_cross", `{"long":[20],"short":[5,10]}`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := NewStrategyPoolRepository(database).Add(context.Background(), pool.Entry{
		Class:        "ema_cross",
		ParamConfigs: map[string]interface{}{"short": []interface{}{5, 10}, "long": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyPoolRepository_AddRejectsBadParams(t *testing.T) {
	database, _ := newMockDB(t)

	_, err := NewStrategyPoolRepository(database).Add(context.Background(), pool.Entry{Class: "ema_cross", ParamConfigs: "{"})
	assert.Error(t, err)

	_, err = NewStrategyPoolRepository(database).Add(context.Background(), pool.Entry{Name: "no class"})
	assert.Error(t, err)
}

func TestStrategyPoolRepository_Import(t *testing.T) {
	database, mock := newMockDB(t)
	p := pool.NewDefaultPool("seed")

	mock.ExpectBegin()
	for i := range p.Strategies {
		mock.ExpectQuery("INSERT INTO strategy_pool").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
	}
	mock.ExpectCommit()

	n, err := NewStrategyPoolRepository(database).Import(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, len(p.Strategies), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyPoolRepository_Remove(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStrategyPoolRepository(database)

	mock.ExpectExec("DELETE FROM strategy_pool").WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM strategy_pool").WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Remove(context.Background(), 3))
	assert.Error(t, repo.Remove(context.Background(), 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func result(class string, annual float64) ensemble.StrategyResult {
	return ensemble.StrategyResult{
		Name:    class,
		Class:   class,
		Params:  backtest.ParameterSet{"period": 14},
		Metrics: backtest.PerformanceMetrics{AnnualReturn: annual, SharpeRatio: math.NaN()},
		Curve:   backtest.EquityCurve{{Date: day(1), Close: 1, Equity: 100}},
	}
}

func TestResultRepository_SaveStrategyResultsRanksByAnnualReturn(t *testing.T) {
	database, mock := newMockDB(t)
	runID := uuid.New()

	mock.ExpectBegin()
	for rank, class := range []string{"b", "c", "a"} {
		mock.ExpectExec("INSERT INTO strategy_signal").
			WithArgs("600519", class, class, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), rank, runID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	err := NewResultRepository(database).SaveStrategyResults(context.Background(), runID, "600519",
		[]ensemble.StrategyResult{result("a", -0.1), result("b", 0.3), result("c", 0.1)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepository_SaveDecision(t *testing.T) {
	database, mock := newMockDB(t)
	runID := uuid.New()
	decisionID := uuid.New()

	d := &ensemble.Decision{
		ID:                decisionID.String(),
		Symbol:            "600519",
		Timestamp:         day(5),
		Signal:            ensemble.LabelBuy,
		SignalScore:       0.4,
		ConfidenceScore:   math.Inf(1),
		SuggestedPosition: 0.35,
		ExecutionStatus:   ensemble.StatusExecute,
	}

	mock.ExpectExec("INSERT INTO ensemble_decision").
		WithArgs("600519", decisionID, "BUY", 0.4, 0.0, 0.35, "EXECUTE", day(5), pgxmock.AnyArg(), runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewResultRepository(database).SaveDecision(context.Background(), runID, d))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, NewResultRepository(database).SaveDecision(context.Background(), runID, &ensemble.Decision{ID: "x"}))
}

func TestResultRepository_CurrentPosition(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewResultRepository(database)

	mock.ExpectQuery("SELECT suggested_position FROM ensemble_decision").WithArgs("600519").
		WillReturnRows(pgxmock.NewRows([]string{"suggested_position"}).AddRow(0.45))
	mock.ExpectQuery("SELECT suggested_position FROM ensemble_decision").WithArgs("000001").
		WillReturnError(pgx.ErrNoRows)

	pos, err := repo.CurrentPosition(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, 0.45, pos)

	pos, err = repo.CurrentPosition(context.Background(), "000001")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepository_LatestDecision(t *testing.T) {
	database, mock := newMockDB(t)

	payload, err := json.Marshal(ensemble.Decision{Symbol: "600519", SuggestedPosition: 0.2})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM ensemble_decision").WithArgs("600519").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery("SELECT payload FROM ensemble_decision").WithArgs("none").
		WillReturnError(pgx.ErrNoRows)

	repo := NewResultRepository(database)
	d, err := repo.LatestDecision(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, 0.2, d.SuggestedPosition)

	d, err = repo.LatestDecision(context.Background(), "none")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewRunRepository(database)

	run := &Run{Symbol: "600519", StartDate: day(1), EndDate: day(30)}

	mock.ExpectExec("INSERT INTO backtest_runs").
		WithArgs(pgxmock.AnyArg(), "600519", "running", day(1), day(30), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.StartRun(context.Background(), run))
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	run.Status = RunStatusPartial
	run.StrategyCount = 3
	run.FailedCount = 1
	mock.ExpectExec("UPDATE backtest_runs").
		WithArgs(run.ID, "partial", 3, 1, "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.FinishRun(context.Background(), run))
	assert.NotNil(t, run.CompletedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_StartRunValidation(t *testing.T) {
	database, _ := newMockDB(t)
	repo := NewRunRepository(database)

	assert.Error(t, repo.StartRun(context.Background(), &Run{StartDate: day(1), EndDate: day(2)}))
	assert.Error(t, repo.StartRun(context.Background(), &Run{Symbol: "X", StartDate: day(2), EndDate: day(2)}))
}

func TestMigrator_LoadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_add_index.sql":           "CREATE INDEX x ON t(a);",
		"001_initial_schema.sql":      "CREATE TABLE t (a INT);",
		"001_initial_schema_down.sql": "DROP TABLE t;",
		"README.md":                   "not sql",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial schema", migrations[0].Description)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add index", migrations[1].Description)
}

func TestMigrator_LoadMigrationsBadName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.sql"), []byte("SELECT 1;"), 0o600))

	_, err := NewMigrator(nil, dir).LoadMigrations()
	assert.Error(t, err)
}

func TestMigrator_RepositoryMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, "../../migrations").LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS strategy_pool")
}
