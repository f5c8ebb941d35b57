package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ocr4all/spi/pkg/core"
)

// Telemetry combines logging, tracing, metrics and events of a provider host.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, nil
// if there is none.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown delivers pending events and flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if configured.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// JournalObserver returns an observer that logs every journal entry of a
// provider, counts it and publishes it as an event.
func (t *Telemetry) JournalObserver() core.JournalObserver {
	statuses := make([]string, 0, len(core.Statuses()))
	for _, s := range core.Statuses() {
		statuses = append(statuses, string(s))
	}

	return func(provider string, entry core.JournalEntry) {
		source, hasSource := entry.SourceStatus()
		user, hasUser := entry.User()

		ev := t.Logger.WithProvider(provider).Event(zerologLevel(entry.Level())).
			Str("target_status", string(entry.TargetStatus())).
			Bool("successful", entry.IsSuccessful())
		if hasSource {
			ev = ev.Str("source_status", string(source))
		}
		if hasUser {
			ev = ev.Str("user", user)
		}
		ev.Msg(entry.Message())

		t.Metrics.RecordJournalEntry(provider, string(entry.Level()), entry.IsSuccessful())
		t.Metrics.SetProviderStatus(provider, string(entry.TargetStatus()), statuses)
		if hasSource && source == core.StatusInitializing {
			outcome := string(entry.TargetStatus())
			if !entry.IsSuccessful() {
				outcome = "failed"
			}
			t.Metrics.RecordInitialization(provider, outcome)
		}

		eventType := EventTypeJournalEntry
		if hasSource && source != entry.TargetStatus() {
			eventType = EventTypeStatusChanged
		}
		data := map[string]interface{}{
			"entry_id":      entry.ID().String(),
			"successful":    entry.IsSuccessful(),
			"target_status": string(entry.TargetStatus()),
		}
		if hasSource {
			data["source_status"] = string(source)
		}
		if hasUser {
			data["user"] = user
		}
		if err := t.Events.Publish(Event{
			Timestamp: entry.Date(),
			Type:      eventType,
			Provider:  provider,
			Message:   entry.Message(),
			Level:     eventLevel(entry.Level()),
			Data:      data,
		}); err != nil {
			t.Logger.WithProvider(provider).WithError(err).Warn("Journal event dropped")
		}
	}
}

// InstrumentLifecycle runs a lifecycle operation of a provider inside a span.
// The span fails if the operation journals an unsuccessful entry.
func (t *Telemetry) InstrumentLifecycle(ctx context.Context, provider, operation string, fn func(ctx context.Context) core.JournalEntry) core.JournalEntry {
	ctx, span := t.Tracer.StartLifecycleSpan(ctx, provider, operation)
	defer span.End()

	entry := fn(ctx)

	span.SetAttributes(
		AttrStatus.String(string(entry.TargetStatus())),
		AttrSuccessful.Bool(entry.IsSuccessful()),
	)
	if user, ok := entry.User(); ok {
		span.SetAttributes(AttrUser.String(user))
	}
	if entry.IsSuccessful() {
		RecordSuccess(span)
	} else {
		RecordError(span, fmt.Errorf("%s", entry.Message()))
	}
	return entry
}

// Execution instruments one processor execution.
type Execution struct {
	ID     string
	Ctx    context.Context
	Logger *Logger

	tel      *Telemetry
	provider string
	span     trace.Span
	timer    *Timer
}

// StartExecution opens the span, logger and event of a processor execution.
// Execution.End must be called with the final state.
func (t *Telemetry) StartExecution(ctx context.Context, provider string) *Execution {
	id := uuid.New().String()
	ctx, span := t.Tracer.StartExecutionSpan(ctx, provider, id)

	logger := t.Logger.WithProvider(provider).WithExecution(id)
	if traceID := TraceID(ctx); traceID != "" {
		logger = logger.WithField("trace_id", traceID)
	}
	ctx = logger.WithContext(ctx)

	t.Metrics.ExecutionStarted()
	_ = t.Events.Publish(Event{
		Type:        EventTypeExecutionStarted,
		Provider:    provider,
		ExecutionID: id,
		Message:     fmt.Sprintf("Execution %s of %s started", id, provider),
		Level:       EventLevelInfo,
	})
	logger.Info("Execution started")

	return &Execution{
		ID:       id,
		Ctx:      ctx,
		Logger:   logger,
		tel:      t,
		provider: provider,
		span:     span,
		timer:    NewTimer(),
	}
}

// End records the final state of the execution.
func (e *Execution) End(state core.State) {
	duration := e.timer.Duration()

	e.span.SetAttributes(AttrExecutionState.String(string(state)))
	level := EventLevelInfo
	eventType := EventTypeExecutionCompleted
	switch state {
	case core.StateCompleted:
		RecordSuccess(e.span)
	case core.StateCanceled:
		level = EventLevelWarning
		eventType = EventTypeExecutionCanceled
		RecordSuccess(e.span)
	default:
		level = EventLevelError
		eventType = EventTypeExecutionInterrupted
		RecordError(e.span, fmt.Errorf("execution %s", state))
	}
	e.span.End()

	e.tel.Metrics.RecordExecution(e.provider, string(state), duration)
	_ = e.tel.Events.Publish(Event{
		Type:        eventType,
		Provider:    e.provider,
		ExecutionID: e.ID,
		Message:     fmt.Sprintf("Execution %s of %s %s", e.ID, e.provider, state),
		Level:       level,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
	e.Logger.Event(zerolog.InfoLevel).Str("state", string(state)).Dur("duration", duration).Msg("Execution ended")
}

func zerologLevel(level core.Level) zerolog.Level {
	switch level {
	case core.LevelDebug:
		return zerolog.DebugLevel
	case core.LevelWarn:
		return zerolog.WarnLevel
	case core.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func eventLevel(level core.Level) string {
	switch level {
	case core.LevelWarn:
		return EventLevelWarning
	case core.LevelError:
		return EventLevelError
	default:
		return EventLevelInfo
	}
}
