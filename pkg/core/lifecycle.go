package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ocr4all/spi/pkg/env"
)

// InitializeFunc is the provider specific initialization run when the
// provider leaves the configured status. Returning a *ProviderError reports
// an expected failure; any other error or panic is unexpected.
type InitializeFunc func(ctx context.Context) error

// JournalObserver is notified after an entry was appended to the journal of
// a provider. Observers run synchronously and must not block.
type JournalObserver func(provider string, entry JournalEntry)

// Settings are the host settings applied when a provider is configured.
type Settings struct {
	// Eager requests the initialization at host start instead of in the
	// background.
	Eager bool

	// Enabled makes the provider active once it is initialized.
	Enabled bool

	// ThreadPool names the host pool the provider's processors should run
	// on. Empty means unset.
	ThreadPool string

	Configuration *env.Configuration
	Architecture  *env.MicroserviceArchitecture
}

// DefaultSettings returns the settings of a freshly loaded provider.
func DefaultSettings() Settings {
	return Settings{Eager: true}
}

// Lifecycle is the lifecycle state machine of a service provider. Providers
// embed it and pass their initialization hook:
//
//	type Provider struct {
//	    *core.Lifecycle
//	}
//
//	p := &Provider{}
//	p.Lifecycle = core.NewLifecycle("tesseract", core.WithInitializer(p.initialize))
//
// Every operation appends exactly one entry to the journal and returns it,
// apart from Initialize which also records entering the initializing
// status. Illegal transitions leave the status unchanged and are journaled
// as warnings. Lifecycle is safe for concurrent use.
type Lifecycle struct {
	provider    string
	initializer InitializeFunc

	mu            sync.Mutex
	status        Status
	eager         bool
	enabled       bool
	threadPool    string
	configuration *env.Configuration
	architecture  *env.MicroserviceArchitecture
	journal       []JournalEntry
	observers     []JournalObserver
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithInitializer sets the initialization hook.
func WithInitializer(fn InitializeFunc) LifecycleOption {
	return func(l *Lifecycle) { l.initializer = fn }
}

// WithJournalObserver registers an observer before the loaded entry is
// recorded.
func WithJournalObserver(observer JournalObserver) LifecycleOption {
	return func(l *Lifecycle) { l.observers = append(l.observers, observer) }
}

// NewLifecycle creates the state machine of the provider in the loaded
// status. Providers are eager and disabled until configured.
func NewLifecycle(provider string, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		provider: provider,
		status:   StatusLoaded,
		eager:    true,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.apply(func() JournalEntry {
		return newJournalEntry("", true, LevelInfo, "loaded service provider", "", StatusLoaded)
	})
	return l
}

// AddJournalObserver registers an observer for subsequent entries.
func (l *Lifecycle) AddJournalObserver(observer JournalObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, observer)
}

// apply runs fn under the lock, appends the resulting entry and notifies
// the observers outside the lock.
func (l *Lifecycle) apply(fn func() JournalEntry) JournalEntry {
	l.mu.Lock()
	entry := fn()
	l.journal = append(l.journal, entry)
	observers := l.observers
	l.mu.Unlock()

	for _, observe := range observers {
		observe(l.provider, entry)
	}
	return entry
}

// move changes the status. The caller holds the lock.
func (l *Lifecycle) move(user string, successful bool, level Level, target Status, message string) JournalEntry {
	entry := newJournalEntry(user, successful, level, message, l.status, target)
	l.status = target
	return entry
}

// reject records an operation that was not performed. The caller holds
// the lock.
func (l *Lifecycle) reject(user, message string) JournalEntry {
	return newJournalEntry(user, false, LevelWarn, message, l.status, l.status)
}

// note records a performed operation that keeps the status. The caller
// holds the lock.
func (l *Lifecycle) note(user, message string) JournalEntry {
	return newJournalEntry(user, true, LevelInfo, message, l.status, l.status)
}

// Configure applies the host settings. It is legal in the loaded status
// only.
func (l *Lifecycle) Configure(settings Settings) JournalEntry {
	return l.apply(func() JournalEntry {
		if l.status != StatusLoaded {
			return l.reject("", "the service provider can only be configured in 'loaded' status")
		}

		l.eager = settings.Eager
		l.enabled = settings.Enabled
		l.threadPool = strings.TrimSpace(settings.ThreadPool)
		l.configuration = settings.Configuration
		l.architecture = settings.Architecture
		return l.move("", true, LevelInfo, StatusConfigured, "configured service provider")
	})
}

// Initialize runs the initialization hook. It is legal in the configured
// status only. On success the provider becomes active if it is enabled and
// inactive otherwise; a failing hook leaves it inactive with a warning that
// carries the error class label.
func (l *Lifecycle) Initialize(ctx context.Context) JournalEntry {
	return l.initialize(ctx, "", func() JournalEntry {
		return l.reject("", "the service provider can only be initialized in 'configured' status")
	})
}

// initialize runs the hook if the provider is configured. Otherwise
// fallback decides under the same lock.
func (l *Lifecycle) initialize(ctx context.Context, user string, fallback func() JournalEntry) JournalEntry {
	proceed := false
	entry := l.apply(func() JournalEntry {
		if l.status != StatusConfigured {
			return fallback()
		}
		proceed = true
		return l.move(user, true, LevelInfo, StatusInitializing, "initializing service provider")
	})
	if !proceed {
		return entry
	}

	err := l.runInitializer(ctx)

	return l.apply(func() JournalEntry {
		if err != nil {
			return l.move(user, false, LevelWarn, StatusInactive,
				"stopped service provider, since it can not be initialized - "+err.Error())
		}
		if l.enabled {
			return l.move(user, true, LevelInfo, StatusActive, "started service provider")
		}
		return l.move(user, true, LevelInfo, StatusInactive, "initialized service provider, but it is disabled")
	})
}

func (l *Lifecycle) runInitializer(ctx context.Context) (err *InitError) {
	if l.initializer == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &InitError{Class: InitErrorUnexpected, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return ClassifyInitError(l.initializer(ctx))
}

// Eager marks the provider for initialization at host start.
func (l *Lifecycle) Eager(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if l.eager {
			return l.reject(user, "the service provider is already eager initialized")
		}
		l.eager = true
		return l.note(user, "eager initialized service provider")
	})
}

// Lazy marks the provider for initialization in the background.
func (l *Lifecycle) Lazy(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if !l.eager {
			return l.reject(user, "the service provider is already lazy initialized")
		}
		l.eager = false
		return l.note(user, "lazy initialized service provider")
	})
}

// Enable enables the provider.
func (l *Lifecycle) Enable(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if l.enabled {
			return l.reject(user, "the service provider is already enabled")
		}
		l.enabled = true
		return l.note(user, "enabled service provider")
	})
}

// Disable disables the provider.
func (l *Lifecycle) Disable(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if !l.enabled {
			return l.reject(user, "the service provider is already disabled")
		}
		l.enabled = false
		return l.note(user, "disabled service provider")
	})
}

// SetThreadPool binds the provider to the named pool. A blank name resets
// the binding.
func (l *Lifecycle) SetThreadPool(user, pool string) JournalEntry {
	pool = strings.TrimSpace(pool)
	if pool == "" {
		return l.ResetThreadPool(user)
	}

	return l.apply(func() JournalEntry {
		if l.threadPool == pool {
			return l.reject(user, "the thread pool is already set to '"+pool+"'")
		}
		l.threadPool = pool
		return l.note(user, "set thread pool '"+pool+"'")
	})
}

// ResetThreadPool removes the pool binding.
func (l *Lifecycle) ResetThreadPool(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if l.threadPool == "" {
			return l.reject(user, "the thread pool is not set")
		}
		l.threadPool = ""
		return l.note(user, "reset thread pool")
	})
}

// Start activates the provider. A configured provider is initialized
// first; an inactive one becomes active.
func (l *Lifecycle) Start(ctx context.Context, user string) JournalEntry {
	return l.initialize(ctx, user, func() JournalEntry {
		if l.status != StatusInactive {
			return l.reject(user, "the service provider can only be started in 'inactive' status")
		}
		return l.move(user, true, LevelInfo, StatusActive, "started service provider")
	})
}

// Restart activates an initialized provider again. A configured provider
// is initialized first.
func (l *Lifecycle) Restart(ctx context.Context, user string) JournalEntry {
	return l.initialize(ctx, user, func() JournalEntry {
		if !l.status.IsInitialized() {
			return l.reject(user, "the service provider can only be restarted in 'active' or 'inactive' status")
		}
		return l.move(user, true, LevelInfo, StatusActive, "restarted service provider")
	})
}

// Stop deactivates an active provider.
func (l *Lifecycle) Stop(user string) JournalEntry {
	return l.apply(func() JournalEntry {
		if l.status != StatusActive {
			return l.reject(user, "the service provider can only be stopped in 'active' status")
		}
		return l.move(user, true, LevelInfo, StatusInactive, "stopped service provider")
	})
}

// Provider returns the provider id the lifecycle reports to observers.
func (l *Lifecycle) Provider() string {
	return l.provider
}

// Status returns the current status.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// IsEagerInitialized returns true if the provider is initialized at host
// start.
func (l *Lifecycle) IsEagerInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eager
}

// IsEnabled returns true if the provider is enabled.
func (l *Lifecycle) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// IsThreadPoolSet returns true if the provider is bound to a pool.
func (l *Lifecycle) IsThreadPoolSet() bool {
	return l.ThreadPool() != ""
}

// ThreadPool returns the pool name, empty if unset.
func (l *Lifecycle) ThreadPool() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threadPool
}

// Configuration returns the configuration handed over by Configure.
func (l *Lifecycle) Configuration() *env.Configuration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configuration
}

// Architecture returns the microservice architecture handed over by
// Configure.
func (l *Lifecycle) Architecture() *env.MicroserviceArchitecture {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.architecture
}

// Journal returns a copy of the journal, oldest entry first.
func (l *Lifecycle) Journal() []JournalEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]JournalEntry(nil), l.journal...)
}
