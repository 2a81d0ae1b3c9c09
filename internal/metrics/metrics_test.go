package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSkipReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"unknown strategy class: foo", SkipUnknownClass},
		{"strategy not registered", SkipUnknownClass},
		{"invalid param payload", SkipBadParams},
		{"no viable parameter combination", SkipNoViable},
		{"boom", SkipOther},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSkipReason(tt.reason))
		})
	}
}

func TestRecordGridEvaluations(t *testing.T) {
	okBefore := testutil.ToFloat64(GridEvaluations.WithLabelValues("ema_cross_test", OutcomeOK))
	failedBefore := testutil.ToFloat64(GridEvaluations.WithLabelValues("ema_cross_test", OutcomeFailed))

	RecordGridEvaluations("ema_cross_test", 9, 2, 0.5)

	assert.Equal(t, okBefore+7, testutil.ToFloat64(GridEvaluations.WithLabelValues("ema_cross_test", OutcomeOK)))
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(GridEvaluations.WithLabelValues("ema_cross_test", OutcomeFailed)))
}

func TestRecordDecisionAndPublish(t *testing.T) {
	RecordDecision("TEST-USD", "BUY", 0.35, 0.42)
	assert.Equal(t, 0.35, testutil.ToFloat64(SuggestedPosition.WithLabelValues("TEST-USD")))
	assert.Equal(t, 0.42, testutil.ToFloat64(SignalScore.WithLabelValues("TEST-USD")))

	okBefore := testutil.ToFloat64(DecisionsPublished.WithLabelValues(OutcomeOK))
	failedBefore := testutil.ToFloat64(DecisionsPublished.WithLabelValues(OutcomeFailed))
	RecordPublish(nil)
	RecordPublish(errors.New("no responders"))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(DecisionsPublished.WithLabelValues(OutcomeOK)))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(DecisionsPublished.WithLabelValues(OutcomeFailed)))
}

func TestRecordRunAndBreaker(t *testing.T) {
	failuresBefore := testutil.ToFloat64(RunFailures.WithLabelValues("load"))
	assert.NotPanics(t, func() {
		RecordRun("failed", "load", 1.2)
		RecordRun("completed", "", 3.4)
		RecordSkippedStrategy("unknown strategy class")
		RecordCacheResult(CacheHit)
	})
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(RunFailures.WithLabelValues("load")))

	trips := testutil.ToFloat64(StoreCircuitBreakerTrips)
	UpdateCircuitBreaker(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(StoreCircuitBreakerOpen))
	assert.Equal(t, trips+1, testutil.ToFloat64(StoreCircuitBreakerTrips))
	UpdateCircuitBreaker(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(StoreCircuitBreakerOpen))
}

func TestHandlers(t *testing.T) {
	healthy := true
	mux := http.NewServeMux()
	RegisterHandlers(mux, map[string]HealthFunc{
		"database": func(ctx context.Context) error {
			if healthy {
				return nil
			}
			return fmt.Errorf("connection refused")
		},
	})
	handler := HTTPMiddleware(mux)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		healthy = false
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "database")
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alphafuse_http_requests_total")
	})

	assert.GreaterOrEqual(t, testutil.ToFloat64(HTTPRequests.WithLabelValues("/ready", "503")), 1.0)
}

func TestServerStartShutdown(t *testing.T) {
	server := NewServer(0, zerolog.Nop())
	require.NoError(t, server.Start())

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}

func TestServerShutdownBeforeStart(t *testing.T) {
	server := NewServer(0, zerolog.Nop())
	assert.NoError(t, server.Shutdown(context.Background()))
}

func TestUpdater(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT symbol, suggested_position, signal_score FROM ensemble_decision").
		WillReturnRows(pgxmock.NewRows([]string{"symbol", "suggested_position", "signal_score"}).
			AddRow("UPD-USD", 0.6, 0.3))
	mock.ExpectQuery("FROM backtest_runs").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("completed", int64(4)).
			AddRow("failed", int64(1)))

	updater := NewUpdater(mock, time.Hour)
	updater.update(context.Background())

	assert.Equal(t, 0.6, testutil.ToFloat64(SuggestedPosition.WithLabelValues("UPD-USD")))
	assert.Equal(t, 4.0, testutil.ToFloat64(RecentRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RecentRuns.WithLabelValues("failed")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdaterQueryErrorAndStop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM ensemble_decision").WillReturnError(errors.New("connection lost"))
	mock.ExpectQuery("FROM backtest_runs").WillReturnError(errors.New("connection lost"))

	updater := NewUpdater(mock, time.Hour)
	done := make(chan struct{})
	go func() {
		updater.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	updater.Stop()
	updater.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}
