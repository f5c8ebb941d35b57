package telemetry

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ocr4all/spi/pkg/core"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) receive(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

func newTestTelemetry(t *testing.T, logs *bytes.Buffer) (*Telemetry, *tracetest.SpanRecorder, *eventSink) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	sink := &eventSink{}
	events.Subscribe(sink.receive, nil)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	return &Telemetry{
		Logger:  NewLoggerTo(logs, cfg.Logging),
		Tracer:  &Tracer{provider: provider, tracer: provider.Tracer("test")},
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, recorder, sink
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"production without endpoint", func(c *Config) { *c = *ProductionConfig() }, true},
		{"production", func(c *Config) {
			*c = *ProductionConfig()
			c.Tracing.Endpoint = "collector:4317"
		}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"async without buffer", func(c *Config) {
			c.Events.EnableAsync = true
			c.Events.BufferSize = 0
		}, true},
		{"no service name", func(c *Config) { c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJournalObserver(t *testing.T) {
	var logs bytes.Buffer
	tel, _, sink := newTestTelemetry(t, &logs)

	l := core.NewLifecycle("demo", core.WithJournalObserver(tel.JournalObserver()))
	l.Configure(core.Settings{Enabled: true})
	l.Initialize(context.Background())
	l.Start(context.Background(), "alice")

	if got := testutil.ToFloat64(tel.Metrics.journalEntries.WithLabelValues("demo", "info", "true")); got != 4 {
		t.Errorf("successful info entries = %v, want 4", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.journalEntries.WithLabelValues("demo", "warn", "false")); got != 1 {
		t.Errorf("rejected entries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.providerStatus.WithLabelValues("demo", "active")); got != 1 {
		t.Errorf("active gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.providerStatus.WithLabelValues("demo", "configured")); got != 0 {
		t.Errorf("configured gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.initializations.WithLabelValues("demo", "active")); got != 1 {
		t.Errorf("initializations = %v, want 1", got)
	}

	want := []string{
		EventTypeJournalEntry,
		EventTypeStatusChanged,
		EventTypeStatusChanged,
		EventTypeStatusChanged,
		EventTypeJournalEntry,
	}
	if got := sink.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("event types = %v, want %v", got, want)
	}

	out := logs.String()
	for _, s := range []string{`"provider":"demo"`, `"message":"started service provider"`, `"user":"alice"`, `"level":"warn"`} {
		if !strings.Contains(out, s) {
			t.Errorf("log output does not contain %s", s)
		}
	}
}

func TestInstrumentLifecycle(t *testing.T) {
	var logs bytes.Buffer
	tel, recorder, _ := newTestTelemetry(t, &logs)
	l := core.NewLifecycle("demo")

	tel.InstrumentLifecycle(context.Background(), "demo", "initialize", l.Initialize)
	tel.InstrumentLifecycle(context.Background(), "demo", "configure", func(context.Context) core.JournalEntry {
		return l.Configure(core.DefaultSettings())
	})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "provider.initialize" || spans[0].Status().Code != codes.Error {
		t.Errorf("rejected initialize span = %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "provider.configure" || spans[1].Status().Code != codes.Ok {
		t.Errorf("configure span = %s %v", spans[1].Name(), spans[1].Status())
	}
}

func TestExecution(t *testing.T) {
	var logs bytes.Buffer
	tel, recorder, sink := newTestTelemetry(t, &logs)

	exec := tel.StartExecution(context.Background(), "tesseract")
	if exec.ID == "" || FromContext(exec.Ctx) != exec.Logger {
		t.Fatal("execution context is not set up")
	}
	if got := testutil.ToFloat64(tel.Metrics.activeExecutions); got != 1 {
		t.Errorf("active executions = %v, want 1", got)
	}

	exec.End(core.StateInterrupted)

	if got := testutil.ToFloat64(tel.Metrics.activeExecutions); got != 0 {
		t.Errorf("active executions = %v, want 0", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.executions.WithLabelValues("tesseract", "interrupted")); got != 1 {
		t.Errorf("interrupted executions = %v, want 1", got)
	}
	if got := sink.types(); len(got) != 2 || got[1] != EventTypeExecutionInterrupted {
		t.Errorf("event types = %v", got)
	}
	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Errorf("execution span not recorded as failed")
	}
	if !strings.Contains(logs.String(), exec.ID) {
		t.Error("log output does not carry the execution id")
	}
}

func TestEventPublisherAsync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    10,
		MaxBatchSize:  2,
		FlushInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	sink := &eventSink{}
	ep.Subscribe(sink.receive, FilterByProvider("a"))
	ep.AddFilter(FilterByLevel(EventLevelWarning))

	for _, e := range []Event{
		{Type: "1", Provider: "a", Level: EventLevelWarning},
		{Type: "2", Provider: "b", Level: EventLevelError},
		{Type: "3", Provider: "a", Level: EventLevelInfo},
		{Type: "4", Provider: "a", Level: EventLevelError},
	} {
		if err := ep.Publish(e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if got := strings.Join(sink.types(), ","); got != "1,4" {
		t.Errorf("delivered %q, want %q", got, "1,4")
	}
	if err := ep.Publish(Event{Type: "late"}); err == nil {
		t.Error("Publish() after Shutdown must fail")
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	m, _ := NewMetrics(MetricsConfig{})
	m.RecordJournalEntry("p", "info", true)
	m.SetProviderStatus("p", "active", []string{"active"})
	m.ExecutionStarted()
	m.RecordExecution("p", "completed", time.Second)
	m.RecordProcessExit("sh", 0)
	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("StartMetricsServer() error = %v", err)
	}

	ep, _ := NewEventPublisher(EventsConfig{})
	if err := ep.Publish(Event{Type: "x"}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
