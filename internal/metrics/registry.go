package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Registry holds the simulation's Prometheus collectors on a private
// registry and observes engine events.
type Registry struct {
	registry *prometheus.Registry

	// Engine events
	Trades         *prometheus.CounterVec
	Stops          *prometheus.CounterVec
	RiskRejections *prometheus.CounterVec
	Equity         prometheus.Gauge
	Drawdown       prometheus.Gauge
	DatesSimulated prometheus.Counter

	// Run lifecycle
	RunDuration *prometheus.HistogramVec
	Runs        *prometheus.CounterVec

	// Supporting infrastructure
	StepDuration *prometheus.HistogramVec
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
	SinkWrites   *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
}

// NewRegistry creates and registers all portfoliosim metrics
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_trades_total",
				Help: "Executed trades by kind (entry, exit, rebalance, flip, stop)",
			},
			[]string{"kind"},
		),

		Stops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_stops_total",
				Help: "Stop triggers by reason",
			},
			[]string{"reason"},
		),

		RiskRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_risk_rejections_total",
				Help: "Pre-trade rejections by failing check and whether the trade was skipped",
			},
			[]string{"check", "enforced"},
		),

		Equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfoliosim_equity",
				Help: "Post-trade equity of the most recently simulated date",
			},
		),

		Drawdown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfoliosim_drawdown_fraction",
				Help: "Current drawdown from the running equity peak (0.0 to 1.0)",
			},
		),

		DatesSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portfoliosim_dates_simulated_total",
				Help: "Simulated dates across all runs",
			},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfoliosim_run_duration_seconds",
				Help:    "Wall-clock duration of simulation runs",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"status"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_runs_total",
				Help: "Simulation runs by final status",
			},
			[]string{"status"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfoliosim_step_duration_seconds",
				Help:    "Duration of each CLI pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_weight_cache_hits_total",
				Help: "Target weight cache hits by backend",
			},
			[]string{"backend"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_weight_cache_misses_total",
				Help: "Target weight cache misses by backend",
			},
			[]string{"backend"},
		),

		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_sink_writes_total",
				Help: "Ledger sink writes by result (ok, error, breaker_open)",
			},
			[]string{"result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfoliosim_http_requests_total",
				Help: "Reporting server requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	r.registry.MustRegister(
		r.Trades,
		r.Stops,
		r.RiskRejections,
		r.Equity,
		r.Drawdown,
		r.DatesSimulated,
		r.RunDuration,
		r.Runs,
		r.StepDuration,
		r.CacheHits,
		r.CacheMisses,
		r.SinkWrites,
		r.HTTPRequests,
	)

	return r
}

// Gatherer exposes the underlying registry for tests and custom exporters
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TradeExecuted counts a trade by kind
func (r *Registry) TradeExecuted(kind string, _ models.Trade) {
	r.Trades.WithLabelValues(kind).Inc()
}

// StopTriggered counts a stop by reason
func (r *Registry) StopTriggered(_, reason string) {
	r.Stops.WithLabelValues(reason).Inc()
}

// RiskRejected counts a pre-trade rejection
func (r *Registry) RiskRejected(check string, enforced bool) {
	label := "false"
	if enforced {
		label = "true"
	}
	r.RiskRejections.WithLabelValues(check, label).Inc()
}

// DateClosed updates the equity and drawdown gauges
func (r *Registry) DateClosed(_ time.Time, equity, drawdown float64) {
	r.Equity.Set(equity)
	r.Drawdown.Set(drawdown)
	r.DatesSimulated.Inc()
}

// RunFinished records the run outcome
func (r *Registry) RunFinished(status string, elapsed time.Duration) {
	r.Runs.WithLabelValues(status).Inc()
	r.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordCacheHit records a weight cache hit for the backend
func (r *Registry) RecordCacheHit(backend string) {
	r.CacheHits.WithLabelValues(backend).Inc()
}

// RecordCacheMiss records a weight cache miss for the backend
func (r *Registry) RecordCacheMiss(backend string) {
	r.CacheMisses.WithLabelValues(backend).Inc()
}

// RecordSinkWrite records the outcome of a ledger sink write
func (r *Registry) RecordSinkWrite(result string) {
	r.SinkWrites.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a reporting server request
func (r *Registry) RecordHTTPRequest(route string, code int) {
	r.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: r,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Pipeline step completed")
}
