package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Simulation metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	periodsSimulated *prometheus.CounterVec
	tranchesOpened   *prometheus.CounterVec
	transactionCost  *prometheus.CounterVec
	regressionFits   *prometheus.CounterVec
	jobsActive       *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"strategy", "status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statarb_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.periodsSimulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_periods_simulated_total",
			Help: "Total number of periods stepped through by the engine",
		},
		[]string{"strategy"},
	)
	r.tranchesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_tranches_opened_total",
			Help: "Total number of tranches opened",
		},
		[]string{"strategy"},
	)
	r.transactionCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_transaction_cost_total",
			Help: "Total transaction cost charged, in currency units",
		},
		[]string{"strategy"},
	)
	r.regressionFits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statarb_regression_fits_total",
			Help: "Total number of rolling regression fits by outcome",
		},
		[]string{"status"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statarb_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.periodsSimulated)
	reg.MustRegister(r.tranchesOpened)
	reg.MustRegister(r.transactionCost)
	reg.MustRegister(r.regressionFits)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(strategy, status string, duration float64) {
	r.backtestsTotal.WithLabelValues(strategy, status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordRun adds the volume of a finished simulation.
func (r *Registry) RecordRun(strategy string, periods, tranches int, cost float64) {
	r.periodsSimulated.WithLabelValues(strategy).Add(float64(periods))
	r.tranchesOpened.WithLabelValues(strategy).Add(float64(tranches))
	if cost > 0 {
		r.transactionCost.WithLabelValues(strategy).Add(cost)
	}
}

// RecordRegressionFits adds n fits that ended with status.
func (r *Registry) RecordRegressionFits(status string, n int) {
	r.regressionFits.WithLabelValues(status).Add(float64(n))
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// WriteTextfile writes the current metrics in the text exposition format,
// for collection by a node exporter after a batch run.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
