package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notification about a provider or one of its executions.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	// Provider is the id of the service provider the event is about.
	Provider string `json:"provider"`

	// ExecutionID is set for execution events.
	ExecutionID string `json:"execution_id,omitempty"`

	Message string                 `json:"message"`
	Level   string                 `json:"level"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeJournalEntry         = "provider.journal"
	EventTypeStatusChanged        = "provider.status_changed"
	EventTypeExecutionStarted     = "execution.started"
	EventTypeExecutionCompleted   = "execution.completed"
	EventTypeExecutionCanceled    = "execution.canceled"
	EventTypeExecutionInterrupted = "execution.interrupted"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a published event.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers, either synchronously or
// in batches from a background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates an event publisher. A disabled publisher drops
// every event.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to the subscribers, setting its id and
// timestamp if missing.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	if ep.ctx.Err() != nil {
		return fmt.Errorf("event publisher stopped")
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// Subscribe adds a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a filter applied before any subscriber.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}
		case <-tick:
			flush()
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent calls the subscribers in subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	subscribers := make([]subscriberEntry, len(ep.subscribers))
	copy(subscribers, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown delivers the pending events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel accepts events of the given level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	threshold := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= threshold
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterByProvider accepts events about the given provider.
func FilterByProvider(provider string) EventFilter {
	return func(event Event) bool {
		return event.Provider == provider
	}
}
