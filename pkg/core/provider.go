package core

import (
	"context"

	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
)

// Descriptor describes a service provider to the host and its users.
type Descriptor interface {
	// Provider returns the unique provider id.
	Provider() string

	// Type returns the category of work the provider offers.
	Type() Type

	// Name returns the localized name.
	Name(locale language.Tag) string

	// Version returns the provider version.
	Version() float32

	// Description returns the localized description, if any.
	Description(locale language.Tag) (string, bool)

	// Categories returns the categories the host groups the provider under.
	Categories() []string

	// Steps returns the workflow steps the provider implements.
	Steps() []string

	// Icon returns the icon name, if any.
	Icon() (string, bool)

	// Index orders providers of the same type; lower comes first.
	Index() int

	// Advice returns a free-form hint for the user, empty if none.
	Advice() string

	// Premise tells whether the provider can run on the target.
	Premise(target *env.Target) env.Premise

	// Model returns the parameter form for the target, nil if the provider
	// takes no arguments.
	Model(target *env.Target) (*model.Model, error)
}

// Controller drives the lifecycle of a service provider. *Lifecycle
// implements it.
type Controller interface {
	Configure(settings Settings) JournalEntry
	Initialize(ctx context.Context) JournalEntry

	Eager(user string) JournalEntry
	Lazy(user string) JournalEntry
	Enable(user string) JournalEntry
	Disable(user string) JournalEntry
	SetThreadPool(user, pool string) JournalEntry
	ResetThreadPool(user string) JournalEntry

	Start(ctx context.Context, user string) JournalEntry
	Restart(ctx context.Context, user string) JournalEntry
	Stop(user string) JournalEntry

	Status() Status
	IsEagerInitialized() bool
	IsEnabled() bool
	IsThreadPoolSet() bool
	ThreadPool() string
	Configuration() *env.Configuration
	Architecture() *env.MicroserviceArchitecture
	Journal() []JournalEntry
	AddJournalObserver(observer JournalObserver)
}

var _ Controller = (*Lifecycle)(nil)

// ServiceProvider is a plugin the host loads, configures and initializes.
type ServiceProvider interface {
	Descriptor
	Controller
}

// ProcessServiceProvider is a service provider whose work runs as a
// processor.
type ProcessServiceProvider interface {
	ServiceProvider

	// NewProcessor returns a processor for a single execution.
	NewProcessor() Processor
}
