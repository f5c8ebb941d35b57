package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration of a service provider host.
type Config struct {
	// ServiceName identifies the host in traces and metrics.
	ServiceName string `yaml:"service_name" json:"service_name"`

	// ServiceVersion is the version of the host.
	ServiceVersion string `yaml:"service_version" json:"service_version"`

	// Environment names the deployment (development, production).
	Environment string `yaml:"environment" json:"environment"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Events  EventsConfig  `yaml:"events" json:"events"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error or fatal.
	Level string `yaml:"level" json:"level"`

	// Format is console or json.
	Format string `yaml:"format" json:"format"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" json:"output"`

	EnableCaller bool `yaml:"enable_caller" json:"enable_caller"`

	// TimeFormat is rfc3339, unix or unixms.
	TimeFormat string `yaml:"time_format" json:"time_format"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter is otlp, stdout or none.
	Exporter string `yaml:"exporter" json:"exporter"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// SamplingRate is the ratio of sampled traces, between 0 and 1.
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`

	Headers  map[string]string `yaml:"headers" json:"headers"`
	Insecure bool              `yaml:"insecure" json:"insecure"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ListenAddress is the address of the metrics endpoint, empty to not serve.
	ListenAddress string `yaml:"listen_address" json:"listen_address"`

	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`

	// Buckets are the execution duration buckets in seconds.
	Buckets []float64 `yaml:"buckets" json:"buckets"`
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// BufferSize bounds the number of pending events in async mode.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	// FlushInterval is how often a partial batch is delivered in async mode.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`

	MaxBatchSize int  `yaml:"max_batch_size" json:"max_batch_size"`
	EnableAsync  bool `yaml:"enable_async" json:"enable_async"`
}

// DefaultConfig returns the configuration used when the host config has no
// telemetry section.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "ocr4all-spi",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			SamplingRate: 1.0,
			Headers:      make(map[string]string),
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "ocr4all_spi",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		Events: EventsConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: time.Second,
			MaxBatchSize:  100,
		},
	}
}

// ProductionConfig returns a configuration for unattended hosts.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	cfg.Metrics.ListenAddress = ":9090"
	cfg.Events.EnableAsync = true
	return cfg
}

// DevelopmentConfig returns a verbose configuration for local runs.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Events.Enabled && c.Events.EnableAsync {
		if c.Events.BufferSize <= 0 {
			return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
		}
		if c.Events.MaxBatchSize <= 0 {
			return fmt.Errorf("event batch size must be positive, got: %d", c.Events.MaxBatchSize)
		}
	}

	return nil
}
