package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ocr4all/spi/pkg/config"
	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/telemetry"
)

var (
	// ErrNotFound is returned for unknown provider ids.
	ErrNotFound = errors.New("provider not found")

	// ErrAlreadyRegistered is returned when a provider id is taken.
	ErrAlreadyRegistered = errors.New("provider already registered")
)

// Registry holds the service providers of a host and drives their
// configuration and initialization.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]core.ServiceProvider
	observers []core.JournalObserver

	logger    zerolog.Logger
	telemetry *telemetry.Telemetry
	limit     int
}

// Option configures a registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithTelemetry traces lifecycle operations and observes the journals of
// registered providers.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Registry) { r.telemetry = t }
}

// WithJournalObserver adds an observer to every registered provider.
func WithJournalObserver(observer core.JournalObserver) Option {
	return func(r *Registry) { r.observers = append(r.observers, observer) }
}

// WithInitializeLimit bounds the number of concurrent background
// initializations. Zero or less means no limit. InitializeAll blocks
// while the limit is reached.
func WithInitializeLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]core.ServiceProvider),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.telemetry != nil {
		r.observers = append(r.observers, r.telemetry.JournalObserver())
	}
	r.logger = r.logger.With().Str("component", "registry").Logger()
	return r
}

// Register adds a provider and attaches the journal observers. Provider ids
// are unique.
func (r *Registry) Register(p core.ServiceProvider) error {
	id := p.Provider()
	if id == "" {
		return fmt.Errorf("provider id is required")
	}

	r.mu.Lock()
	if _, exists := r.providers[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.providers[id] = p
	r.mu.Unlock()

	for _, observer := range r.observers {
		p.AddJournalObserver(observer)
	}

	r.logger.Debug().Str("provider", id).Str("type", string(p.Type())).Msg("Provider registered")
	return nil
}

// Unregister removes a provider. Its journal observers stay attached.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.providers, id)
	return nil
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (core.ServiceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// GetProcess returns a provider running processors.
func (r *Registry) GetProcess(id string) (core.ProcessServiceProvider, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	pp, ok := p.(core.ProcessServiceProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not run processors", id)
	}
	return pp, nil
}

// List returns the providers ordered by type, index and id.
func (r *Registry) List() []core.ServiceProvider {
	r.mu.RLock()
	providers := make([]core.ServiceProvider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	sort.Slice(providers, func(i, j int) bool {
		a, b := providers[i], providers[j]
		if a.Type() != b.Type() {
			return a.Type() < b.Type()
		}
		if a.Index() != b.Index() {
			return a.Index() < b.Index()
		}
		return a.Provider() < b.Provider()
	})
	return providers
}

// Statuses returns the status of every provider.
func (r *Registry) Statuses() map[string]core.Status {
	statuses := make(map[string]core.Status)
	for _, p := range r.List() {
		statuses[p.Provider()] = p.Status()
	}
	return statuses
}

// ConfigureAll hands the host configuration and each provider's settings
// to the providers. It returns the journal entries by provider id.
func (r *Registry) ConfigureAll(cfg *config.HostConfig) map[string]core.JournalEntry {
	configuration := cfg.Configuration()
	architecture := cfg.Architecture()

	entries := make(map[string]core.JournalEntry)
	for _, p := range r.List() {
		entry := p.Configure(cfg.Settings(p.Provider(), configuration, architecture))
		entries[p.Provider()] = entry
		if !entry.IsSuccessful() {
			r.logger.Warn().Str("provider", p.Provider()).Msg(entry.Message())
		}
	}
	return entries
}

// InitError reports a provider whose initialization failed.
type InitError struct {
	Provider string
	Entry    core.JournalEntry
}

func (e *InitError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Entry.Message())
}

// Initialization tracks the background initialization of lazy providers.
type Initialization struct {
	group *errgroup.Group

	mu   sync.Mutex
	errs []error
	lazy []string
}

// Lazy returns the ids of the providers initialized in the background.
func (i *Initialization) Lazy() []string {
	return append([]string(nil), i.lazy...)
}

// Wait blocks until the background initializations are done and returns
// the failures joined.
func (i *Initialization) Wait() error {
	_ = i.group.Wait()
	i.mu.Lock()
	defer i.mu.Unlock()
	return errors.Join(i.errs...)
}

func (i *Initialization) fail(err error) {
	i.mu.Lock()
	i.errs = append(i.errs, err)
	i.mu.Unlock()
}

// InitializeAll initializes the eager providers in order and starts the
// lazy enabled providers in the background. Lazy disabled providers stay
// configured until started. It returns the failures of the eager
// providers and a handle on the background work.
func (r *Registry) InitializeAll(ctx context.Context) (*Initialization, error) {
	run := &Initialization{group: new(errgroup.Group)}
	if r.limit > 0 {
		run.group.SetLimit(r.limit)
	}

	var (
		eager []core.ServiceProvider
		lazy  []core.ServiceProvider
	)
	for _, p := range r.List() {
		switch {
		case p.Status() != core.StatusConfigured:
			r.logger.Debug().Str("provider", p.Provider()).Str("status", string(p.Status())).Msg("Skipping initialization")
		case p.IsEagerInitialized():
			eager = append(eager, p)
		case p.IsEnabled():
			lazy = append(lazy, p)
		}
	}

	var errs []error
	for _, p := range eager {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if entry := r.initialize(ctx, p); !entry.IsSuccessful() {
			errs = append(errs, &InitError{Provider: p.Provider(), Entry: entry})
		}
	}

	for _, p := range lazy {
		run.lazy = append(run.lazy, p.Provider())
		run.group.Go(func() error {
			if entry := r.initialize(ctx, p); !entry.IsSuccessful() {
				err := &InitError{Provider: p.Provider(), Entry: entry}
				run.fail(err)
				return err
			}
			return nil
		})
	}

	r.logger.Info().
		Int("eager", len(eager)).
		Int("lazy", len(lazy)).
		Int("failed", len(errs)).
		Msg("Providers initialized")

	return run, errors.Join(errs...)
}

func (r *Registry) initialize(ctx context.Context, p core.ServiceProvider) core.JournalEntry {
	if r.telemetry == nil {
		return p.Initialize(ctx)
	}
	return r.telemetry.InstrumentLifecycle(ctx, p.Provider(), "initialize", p.Initialize)
}

// Start initializes a configured provider or activates an inactive one.
func (r *Registry) Start(ctx context.Context, id, user string) (core.JournalEntry, error) {
	p, err := r.Get(id)
	if err != nil {
		return core.JournalEntry{}, err
	}
	return r.instrument(ctx, p, "start", func(ctx context.Context) core.JournalEntry {
		return p.Start(ctx, user)
	}), nil
}

// Restart reinitializes a provider.
func (r *Registry) Restart(ctx context.Context, id, user string) (core.JournalEntry, error) {
	p, err := r.Get(id)
	if err != nil {
		return core.JournalEntry{}, err
	}
	return r.instrument(ctx, p, "restart", func(ctx context.Context) core.JournalEntry {
		return p.Restart(ctx, user)
	}), nil
}

// Stop deactivates a provider.
func (r *Registry) Stop(ctx context.Context, id, user string) (core.JournalEntry, error) {
	p, err := r.Get(id)
	if err != nil {
		return core.JournalEntry{}, err
	}
	return r.instrument(ctx, p, "stop", func(context.Context) core.JournalEntry {
		return p.Stop(user)
	}), nil
}

func (r *Registry) instrument(ctx context.Context, p core.ServiceProvider, operation string, fn func(context.Context) core.JournalEntry) core.JournalEntry {
	if r.telemetry == nil {
		return fn(ctx)
	}
	return r.telemetry.InstrumentLifecycle(ctx, p.Provider(), operation, fn)
}

// Premise asks a provider whether it can run on the target.
func (r *Registry) Premise(id string, target *env.Target) (env.Premise, error) {
	p, err := r.Get(id)
	if err != nil {
		return env.Premise{}, err
	}
	return p.Premise(target), nil
}
