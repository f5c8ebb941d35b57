package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ocr4all/spi/pkg/env"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	return p
}

const hostCUE = `
name: "test-host"

properties: [
	{collection: "ocrd", key: "opt", value: "/opt/ocr-d"},
	{collection: "ocrd", key: "unset"},
]

system_commands: [
	{type: "docker", command: "/usr/bin/docker", available: true},
]

hosts: [{id: "gpu", url: "http://gpu:8080"}]

providers: [{
	id:          "ocrd-tesserocr"
	type:        "ocr"
	version:     1.5
	index:       10
	enabled:     true
	thread_pool: "gpu"
	command: {
		path: "ocrd-tesserocr-recognize"
		args: ["-m", "${mets}"]
		required_commands: ["docker"]
		fields: [{argument: "model", kind: "string", default: "deu"}]
	}
}, {
	id:    "import"
	type:  "import"
	eager: false
}]

telemetry: logging: level: "debug"
`

func TestParseInlineCUE(t *testing.T) {
	cfg, err := newTestParser(t).ParseInline(hostCUE, FormatCUE)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}

	if cfg.Name != "test-host" || len(cfg.Providers) != 2 || len(cfg.Properties) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Properties[1].Value != nil {
		t.Error("property without value must stay unset")
	}

	ocr := cfg.Providers[0]
	if ocr.Version != 1.5 || ocr.Index != 10 || !ocr.Enabled || ocr.ThreadPool != "gpu" || !ocr.IsEager() {
		t.Errorf("provider = %+v", ocr)
	}
	if ocr.Command == nil || ocr.Command.Path != "ocrd-tesserocr-recognize" || len(ocr.Command.Fields) != 1 {
		t.Fatalf("command = %+v", ocr.Command)
	}
	if ocr.Command.Fields[0].Default != "deu" {
		t.Errorf("field default = %v", ocr.Command.Fields[0].Default)
	}
	if cfg.Providers[1].IsEager() {
		t.Error("import provider must be lazy")
	}

	// Absent values keep their defaults.
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Telemetry.Logging)
	}
	if cfg.Telemetry.ServiceName != "ocr4all-spi" || cfg.Store.Path != "ocr4all-spi.db" {
		t.Errorf("defaults lost: service %q, store %q", cfg.Telemetry.ServiceName, cfg.Store.Path)
	}
}

func TestParseInlineYAML(t *testing.T) {
	content := `
name: yaml-host
providers:
  - id: calamari
    type: ocr
    enabled: true
policies:
  paths: [/etc/ocr4all/policies]
  watch: true
telemetry:
  events:
    enable_async: true
    flush_interval: 250ms
`
	cfg, err := newTestParser(t).ParseInline(content, FormatYAML)
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].ID != "calamari" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if !cfg.Policies.Watch || len(cfg.Policies.Paths) != 1 {
		t.Errorf("policies = %+v", cfg.Policies)
	}
	if !cfg.Telemetry.Events.EnableAsync || cfg.Telemetry.Events.FlushInterval != 250*time.Millisecond {
		t.Errorf("events = %+v", cfg.Telemetry.Events)
	}
	if cfg.Telemetry.Events.BufferSize != 1000 {
		t.Errorf("buffer size default lost: %d", cfg.Telemetry.Events.BufferSize)
	}
}

func TestParseInlineErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  Format
		path    string
	}{
		{
			name:    "syntax",
			content: "name: \"x\"\nproviders: [\n",
			format:  FormatCUE,
		},
		{
			name:    "unknown field",
			content: "name: \"x\"\nplugins: []\n",
			format:  FormatCUE,
			path:    "plugins",
		},
		{
			name:    "invalid provider type",
			content: "name: x\nproviders:\n  - id: a\n    type: scanner\n",
			format:  FormatYAML,
			path:    "providers.0.type",
		},
		{
			name:    "missing name",
			content: "store:\n  path: x.db\n",
			format:  FormatYAML,
			path:    "name",
		},
		{
			name:    "duplicate provider",
			content: "name: x\nproviders:\n  - {id: a, type: ocr}\n  - {id: a, type: olr}\n",
			format:  FormatYAML,
			path:    "HostConfig.Providers",
		},
		{
			name:    "invalid telemetry",
			content: "name: x\ntelemetry:\n  tracing: {enabled: true, exporter: otlp}\n",
			format:  FormatYAML,
			path:    "telemetry",
		},
		{
			name:    "empty yaml",
			content: "",
			format:  FormatYAML,
		},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseInline(tt.content, tt.format)
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("ParseInline() error = %v, want ValidationErrors", err)
			}
			if tt.path == "" {
				return
			}
			for _, e := range errs {
				if strings.HasPrefix(e.Path, tt.path) {
					return
				}
			}
			t.Errorf("no error at %s in %v", tt.path, errs)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("host.cue", "name: \"dir-host\"\nstore: path: \":memory:\"\n")
	write("providers.yaml", "providers:\n  - id: tesseract\n    type: ocr\n")
	write("README.md", "ignored")

	cfg, err := LoadFile(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Name != "dir-host" || cfg.Store.Path != ":memory:" || len(cfg.Providers) != 1 {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := LoadFile(context.Background(), filepath.Join(dir, "missing.cue")); err == nil {
		t.Error("expected error for missing source")
	}
	if _, err := LoadFile(context.Background()); err == nil {
		t.Error("expected error without sources")
	}
}

func TestLoadReportsPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.cue")
	if err := os.WriteFile(path, []byte("name: \"x\"\nname: \"y\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(context.Background(), path)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("LoadFile() error = %v, want ValidationErrors", err)
	}
	for _, e := range errs {
		if e.File == path && e.Line > 0 {
			return
		}
	}
	t.Errorf("errors = %v, want a position in %s", errs, path)
}

func TestMarshalRoundTrip(t *testing.T) {
	p := newTestParser(t)
	cfg, err := p.ParseInline(hostCUE, FormatCUE)
	if err != nil {
		t.Fatal(err)
	}

	out, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	again, err := p.ParseInline(string(out), FormatYAML)
	if err != nil {
		t.Fatalf("ParseInline(marshaled) error = %v\n%s", err, out)
	}
	if len(again.Providers) != 2 || again.Providers[0].Command.Args[1] != "${mets}" || again.Telemetry.Logging.Level != "debug" {
		t.Errorf("round trip lost values: %+v", again)
	}
}

func TestConversions(t *testing.T) {
	lookups := map[string]bool{"/usr/bin/convert": true}
	lookPath := LookPath
	t.Cleanup(func() { LookPath = lookPath })
	LookPath = func(file string) (string, error) {
		if lookups[file] {
			return file, nil
		}
		return "", errors.New("not found")
	}

	no := false
	value := "/opt"
	cfg := &HostConfig{
		Properties: []PropertyConfig{{Collection: "ocrd", Key: "opt", Value: &value}},
		SystemCommands: []SystemCommandConfig{
			{Type: "docker", Command: "/usr/bin/docker"},
			{Type: "convert", Command: "/usr/bin/convert"},
			{Type: "identify", Command: "/usr/bin/convert", Available: &no},
		},
		Hosts:     []HostEntryConfig{{ID: "gpu", URL: "http://gpu:8080"}},
		Providers: []ProviderConfig{{ID: "lazy", Type: "ocr", Eager: &no, Enabled: true, ThreadPool: "gpu"}},
	}

	configuration := cfg.Configuration()
	if configuration.IsSystemCommandAvailable(env.SystemCommandDocker) {
		t.Error("docker must not be available")
	}
	if !configuration.IsSystemCommandAvailable(env.SystemCommandConvert) {
		t.Error("convert must be available")
	}
	if configuration.IsSystemCommandAvailable(env.SystemCommandIdentify) {
		t.Error("explicit availability must win over probing")
	}
	if got := configuration.Value(env.CollectionKey{Collection: "ocrd", Key: "opt"}); got != "/opt" {
		t.Errorf("property = %q", got)
	}

	architecture := cfg.Architecture()
	if h, ok := architecture.Host("gpu"); !ok || h.URL != "http://gpu:8080" {
		t.Errorf("host = %+v, %v", h, ok)
	}

	lazy := cfg.Settings("lazy", configuration, architecture)
	if lazy.Eager || !lazy.Enabled || lazy.ThreadPool != "gpu" || lazy.Configuration != configuration {
		t.Errorf("settings = %+v", lazy)
	}
	unknown := cfg.Settings("unknown", nil, nil)
	if !unknown.Eager || unknown.Enabled {
		t.Errorf("default settings = %+v", unknown)
	}
}
