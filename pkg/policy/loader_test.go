package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestLoadFromFileRego(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docker-required.rego")
	content := `# Blocks providers on hosts
# without docker.
# providers: ocr-d, calamari

package premise.docker

import rego.v1

block contains "docker is required" if not input.system_commands.docker
`
	writeFile(t, path, content)

	p, err := newTestLoader().loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if p.Name != "docker-required" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Description != "Blocks providers on hosts without docker." {
		t.Errorf("description = %q", p.Description)
	}
	if len(p.Providers) != 2 || p.Providers[0] != "ocr-d" || p.Providers[1] != "calamari" {
		t.Errorf("providers = %v", p.Providers)
	}
	if p.Rego != content || !p.Enabled || p.Source != path {
		t.Errorf("policy = %+v", p)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Policy
		wantErr bool
	}{
		{
			name:    "named",
			content: `{"name": "custom", "description": "d", "rego": "package x", "providers": ["a"]}`,
			want:    Policy{Name: "custom", Description: "d", Rego: "package x", Enabled: true, Providers: []string{"a"}},
		},
		{
			name:    "disabled and unnamed",
			content: `{"rego": "package x", "enabled": false}`,
			want:    Policy{Name: "policy", Rego: "package x"},
		},
		{
			name:    "missing module",
			content: `{"name": "empty"}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			content: `{"name":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.json")
			writeFile(t, path, tt.content)

			p, err := newTestLoader().loadFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.Name != tt.want.Name || p.Description != tt.want.Description || p.Rego != tt.want.Rego ||
				p.Enabled != tt.want.Enabled || len(p.Providers) != len(tt.want.Providers) || p.Source != path {
				t.Errorf("policy = %+v, want %+v", p, tt.want)
			}
		})
	}
}

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.rego"), "package a")
	writeFile(t, filepath.Join(nested, "b.rego"), "package b")
	writeFile(t, filepath.Join(nested, "c.json"), `{"rego": "package c"}`)
	writeFile(t, filepath.Join(nested, "broken.json"), `{`)
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	single := filepath.Join(t.TempDir(), "single.rego")
	writeFile(t, single, "package single")

	policies, err := newTestLoader().LoadFromPaths(context.Background(), []string{dir, single})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	names := make(map[string]bool)
	for _, p := range policies {
		names[p.Name] = true
	}
	for _, name := range []string{"a", "b", "c", "single"} {
		if !names[name] {
			t.Errorf("policy %s not loaded", name)
		}
	}
	if len(policies) != 4 {
		t.Errorf("loaded %d policies, want 4", len(policies))
	}

	if _, err := newTestLoader().LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoaderCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.rego")
	writeFile(t, path, "package first")

	loader := newTestLoader()
	if _, err := loader.loadFromFile(path); err != nil {
		t.Fatal(err)
	}

	// A rewrite with a new modification time invalidates the entry.
	writeFile(t, path, "package second")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	p, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Rego != "package second" {
		t.Errorf("rego = %q, want reloaded content", p.Rego)
	}

	loader.ClearCache()
	if len(loader.cache) != 0 {
		t.Error("cache not cleared")
	}
}

func TestLoaderWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.rego"), "package one")

	reloaded := make(chan []Policy, 4)
	loader := newTestLoader()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "two.rego"), "package two")

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("reloaded %d policies, want 2", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after creating a policy file")
	}
}
