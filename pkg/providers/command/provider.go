package command

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/config"
	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/policy"
	"github.com/ocr4all/spi/pkg/telemetry"
)

const defaultPollInterval = 200 * time.Millisecond

// Provider is a process service provider running an external command
// declared in the host configuration.
type Provider struct {
	*core.Lifecycle

	cfg      config.ProviderConfig
	command  config.CommandConfig
	policies *policy.Engine
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	poll     time.Duration
}

var _ core.ProcessServiceProvider = (*Provider)(nil)

// Option configures a command provider.
type Option func(*Provider)

// WithPolicyEngine decides premises with the engine. Without an engine only
// the required system commands are checked.
func WithPolicyEngine(engine *policy.Engine) Option {
	return func(p *Provider) { p.policies = engine }
}

// WithMetrics records the exit codes of the command.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(p *Provider) { p.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithPollInterval sets how often a running command's output is forwarded.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.poll = d
		}
	}
}

// New creates a provider from its configuration. The configuration must
// declare a command.
func New(cfg config.ProviderConfig, opts ...Option) (*Provider, error) {
	if cfg.Command == nil {
		return nil, fmt.Errorf("provider %s: no command configured", cfg.ID)
	}
	if err := core.Type(cfg.Type).Validate(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
	}

	p := &Provider{
		cfg:     cfg,
		command: *cfg.Command,
		logger:  zerolog.Nop(),
		poll:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("provider", cfg.ID).Logger()

	// Building the model up front rejects defaults of the wrong kind.
	if _, err := p.Model(nil); err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
	}

	p.Lifecycle = core.NewLifecycle(cfg.ID, core.WithInitializer(p.initialize))
	return p, nil
}

// FromConfig creates the providers of the host configuration declaring a
// command.
func FromConfig(cfg *config.HostConfig, opts ...Option) ([]*Provider, error) {
	var providers []*Provider
	for _, pc := range cfg.Providers {
		if pc.Command == nil {
			continue
		}
		p, err := New(pc, opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func (p *Provider) initialize(context.Context) error {
	path, err := config.LookPath(p.command.Path)
	if err != nil {
		return core.NewProviderError(fmt.Sprintf("the command '%s' is not available", p.command.Path), err)
	}
	p.logger.Debug().Str("command", path).Msg("Command resolved")
	return nil
}

func (p *Provider) Type() core.Type { return core.Type(p.cfg.Type) }

func (p *Provider) Name(language.Tag) string {
	if p.cfg.Name == "" {
		return p.cfg.ID
	}
	return p.cfg.Name
}

func (p *Provider) Version() float32 { return p.cfg.Version }

func (p *Provider) Description(language.Tag) (string, bool) {
	return p.cfg.Description, p.cfg.Description != ""
}

func (p *Provider) Categories() []string { return append([]string(nil), p.cfg.Categories...) }

func (p *Provider) Steps() []string { return append([]string(nil), p.cfg.Steps...) }

func (p *Provider) Icon() (string, bool) { return p.cfg.Icon, p.cfg.Icon != "" }

func (p *Provider) Index() int { return p.cfg.Index }

func (p *Provider) Advice() string { return p.cfg.Advice }

// Premise evaluates the premise policies for the target.
func (p *Provider) Premise(target *env.Target) env.Premise {
	facts := policy.ProviderFacts{
		ID:               p.cfg.ID,
		Type:             p.cfg.Type,
		Status:           string(p.Status()),
		RequiredCommands: p.command.RequiredCommands,
	}
	if p.policies != nil {
		input := policy.NewInput(facts, target, p.Configuration(), p.Architecture())
		return p.policies.Premise(context.Background(), input)
	}

	for _, c := range p.command.RequiredCommands {
		if !p.Configuration().IsSystemCommandAvailable(env.SystemCommandType(c)) {
			return env.NewPremise(env.PremiseBlock, env.Text(fmt.Sprintf("the required system command '%s' is not available", c)))
		}
	}
	return env.Release()
}

// Model returns the form of the declared fields, nil if there are none.
func (p *Provider) Model(*env.Target) (*model.Model, error) {
	if len(p.command.Fields) == 0 {
		return nil, nil
	}

	entries := make([]model.Entry, 0, len(p.command.Fields))
	for _, fc := range p.command.Fields {
		label := fc.Label
		if label == "" {
			label = fc.Argument
		}

		var opts []model.FieldOption
		if fc.Description != "" {
			opts = append(opts, model.WithDescription(env.Text(fc.Description)))
		}
		if fc.Default != nil {
			value, err := fieldValue(model.Kind(fc.Kind), fc.Default)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", fc.Argument, err)
			}
			opts = append(opts, model.WithValue(value))
		}

		field, err := model.NewField(model.Kind(fc.Kind), fc.Argument, env.Text(label), opts...)
		if err != nil {
			return nil, err
		}
		entries = append(entries, field)
	}
	return model.NewModel(entries...)
}

// NewProcessor returns a processor for one execution of the command.
func (p *Provider) NewProcessor() core.Processor {
	return &Processor{provider: p}
}

// fieldValue converts a configured default to the value type of the kind.
func fieldValue(kind model.Kind, value interface{}) (any, error) {
	switch kind {
	case model.KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case model.KindInteger:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		}
	case model.KindDecimal:
		switch v := value.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		case int:
			return float32(v), nil
		case int64:
			return float32(v), nil
		}
	case model.KindBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("default %v does not match kind %s", value, kind)
}
