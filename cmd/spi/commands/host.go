package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/ocr4all/spi/pkg/config"
	"github.com/ocr4all/spi/pkg/policy"
	"github.com/ocr4all/spi/pkg/providers/command"
	"github.com/ocr4all/spi/pkg/registry"
	"github.com/ocr4all/spi/pkg/stores"
	"github.com/ocr4all/spi/pkg/telemetry"
)

// host wires the configured providers with telemetry, the archive and the
// premise policies.
type host struct {
	cfg       *config.HostConfig
	telemetry *telemetry.Telemetry
	store     *stores.SQLiteStore
	policies  *policy.Engine
	registry  *registry.Registry
}

// openHost loads the configuration, registers the command providers and
// configures them. Providers are initialized if initialize is set; lazy
// providers are waited for.
func openHost(ctx context.Context, initialize bool) (*host, error) {
	cfg, err := config.LoadFile(ctx, configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	h := &host{cfg: cfg, telemetry: tel}

	if err := tel.StartMetricsServer(); err != nil {
		h.close(ctx)
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		h.close(ctx)
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		h.close(ctx)
		return nil, err
	}
	h.store = store
	if err := store.Migrate(ctx); err != nil {
		h.close(ctx)
		return nil, err
	}

	logger := tel.Logger.Zerolog()
	h.policies, err = policy.NewEngine(logger)
	if err != nil {
		h.close(ctx)
		return nil, err
	}
	if paths := cfg.Policies.Paths; len(paths) > 0 {
		if cfg.Policies.Watch {
			go func() {
				if err := h.policies.Watch(ctx, paths); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("Policy watch stopped")
				}
			}()
		} else if err := h.policies.LoadPolicies(ctx, paths); err != nil {
			h.close(ctx)
			return nil, err
		}
	}

	h.registry = registry.New(
		registry.WithLogger(logger),
		registry.WithTelemetry(tel),
		registry.WithJournalObserver(stores.JournalObserver(ctx, store, func(err error) {
			log.Warn().Err(err).Msg("Failed to archive journal entry")
		})),
	)

	providers, err := command.FromConfig(cfg,
		command.WithPolicyEngine(h.policies),
		command.WithMetrics(tel.Metrics),
		command.WithLogger(logger),
	)
	if err != nil {
		h.close(ctx)
		return nil, err
	}
	for _, p := range providers {
		if err := h.registry.Register(p); err != nil {
			h.close(ctx)
			return nil, err
		}
	}
	h.registry.ConfigureAll(cfg)

	if initialize {
		run, err := h.registry.InitializeAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Some providers failed to initialize")
		}
		if err := run.Wait(); err != nil {
			log.Warn().Err(err).Msg("Some lazy providers failed to initialize")
		}
	}
	return h, nil
}

func (h *host) close(ctx context.Context) {
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if err := h.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
