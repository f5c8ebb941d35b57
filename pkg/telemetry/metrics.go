package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides the Prometheus collectors of a provider host. A disabled
// Metrics ignores every record call.
type Metrics struct {
	config MetricsConfig

	// Lifecycle
	journalEntries  *prometheus.CounterVec
	providerStatus  *prometheus.GaugeVec
	initializations *prometheus.CounterVec

	// Executions
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	activeExecutions  prometheus.Gauge

	// External processes
	processExits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		journalEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_entries_total",
				Help:      "Total number of provider journal entries",
			},
			[]string{"provider", "level", "successful"},
		),
		providerStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_status",
				Help:      "Current provider status (1 for the current status, 0 otherwise)",
			},
			[]string{"provider", "status"},
		),
		initializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_initializations_total",
				Help:      "Total number of provider initializations by outcome",
			},
			[]string{"provider", "outcome"},
		),

		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of processor executions by final state",
			},
			[]string{"provider", "state"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of processor executions in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "state"},
		),
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Current number of running processor executions",
			},
		),

		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_exits_total",
				Help:      "Total number of external process exits by exit code",
			},
			[]string{"command", "code"},
		),
	}

	registry.MustRegister(
		m.journalEntries,
		m.providerStatus,
		m.initializations,
		m.executions,
		m.executionDuration,
		m.activeExecutions,
		m.processExits,
	)

	return m, nil
}

// RecordJournalEntry counts a journal entry.
func (m *Metrics) RecordJournalEntry(provider, level string, successful bool) {
	if m.journalEntries == nil {
		return
	}
	m.journalEntries.WithLabelValues(provider, level, strconv.FormatBool(successful)).Inc()
}

// SetProviderStatus marks current as the status of the provider and clears
// the other statuses.
func (m *Metrics) SetProviderStatus(provider, current string, statuses []string) {
	if m.providerStatus == nil {
		return
	}
	for _, s := range statuses {
		value := 0.0
		if s == current {
			value = 1.0
		}
		m.providerStatus.WithLabelValues(provider, s).Set(value)
	}
}

// RecordInitialization counts an initialization outcome: the target status
// on success or the failure class.
func (m *Metrics) RecordInitialization(provider, outcome string) {
	if m.initializations == nil {
		return
	}
	m.initializations.WithLabelValues(provider, outcome).Inc()
}

// ExecutionStarted increments the active executions gauge.
func (m *Metrics) ExecutionStarted() {
	if m.activeExecutions == nil {
		return
	}
	m.activeExecutions.Inc()
}

// RecordExecution records a finished execution.
func (m *Metrics) RecordExecution(provider, state string, duration time.Duration) {
	if m.executions == nil {
		return
	}
	m.executions.WithLabelValues(provider, state).Inc()
	m.executionDuration.WithLabelValues(provider, state).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// RecordProcessExit counts the exit code of an external process.
func (m *Metrics) RecordProcessExit(command string, code int) {
	if m.processExits == nil {
		return
	}
	m.processExits.WithLabelValues(command, strconv.Itoa(code)).Inc()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint in the background. It does
// nothing if metrics are disabled or no listen address is configured.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	return nil
}
