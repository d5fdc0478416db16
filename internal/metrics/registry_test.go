package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfoliosim/internal/models"
)

func TestRegistry_ObservesEngineEvents(t *testing.T) {
	r := NewRegistry()

	r.TradeExecuted("entry", models.Trade{})
	r.TradeExecuted("entry", models.Trade{})
	r.TradeExecuted("stop", models.Trade{})
	r.StopTriggered("AAPL", "trailing_stop")
	r.RiskRejected("drawdown", true)
	r.DateClosed(time.Now(), 101234.5, 0.03)
	r.RunFinished("complete", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Trades.WithLabelValues("entry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Trades.WithLabelValues("stop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Stops.WithLabelValues("trailing_stop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RiskRejections.WithLabelValues("drawdown", "true")))
	assert.Equal(t, 101234.5, testutil.ToFloat64(r.Equity))
	assert.Equal(t, 0.03, testutil.ToFloat64(r.Drawdown))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("complete")))
}

func TestRegistry_RunDurationHistogram(t *testing.T) {
	r := NewRegistry()
	r.RunFinished("incomplete", 2*time.Second)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "portfoliosim_run_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.Equal(t, 2.0, hist.GetSampleSum())
}

func TestRegistry_SupportingCounters(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheHit("redis")
	r.RecordCacheMiss("memory")
	r.RecordSinkWrite("breaker_open")
	r.RecordHTTPRequest("/health", http.StatusOK)
	r.StartStepTimer("simulate").Stop("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheHits.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheMisses.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SinkWrites.WithLabelValues("breaker_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequests.WithLabelValues("/health", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.StepDuration))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.TradeExecuted("rebalance", models.Trade{})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `portfoliosim_trades_total{kind="rebalance"} 1`))
}

func TestRegistries_AreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.TradeExecuted("entry", models.Trade{})
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Trades.WithLabelValues("entry")))
}
