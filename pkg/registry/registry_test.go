package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/config"
	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/telemetry"
)

// fakeProvider is a service provider with a configurable initializer.
type fakeProvider struct {
	*core.Lifecycle
	typ     core.Type
	index   int
	premise env.Premise
}

func newFakeProvider(id string, typ core.Type, index int, initialize core.InitializeFunc) *fakeProvider {
	p := &fakeProvider{typ: typ, index: index, premise: env.Release()}
	var opts []core.LifecycleOption
	if initialize != nil {
		opts = append(opts, core.WithInitializer(initialize))
	}
	p.Lifecycle = core.NewLifecycle(id, opts...)
	return p
}

func (p *fakeProvider) Type() core.Type                         { return p.typ }
func (p *fakeProvider) Name(language.Tag) string                { return p.Provider() }
func (p *fakeProvider) Version() float32                        { return 1 }
func (p *fakeProvider) Description(language.Tag) (string, bool) { return "", false }
func (p *fakeProvider) Categories() []string                    { return nil }
func (p *fakeProvider) Steps() []string                         { return nil }
func (p *fakeProvider) Icon() (string, bool)                    { return "", false }
func (p *fakeProvider) Index() int                              { return p.index }
func (p *fakeProvider) Advice() string                          { return "" }
func (p *fakeProvider) Premise(*env.Target) env.Premise         { return p.premise }
func (p *fakeProvider) Model(*env.Target) (*model.Model, error) { return nil, nil }

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	providers := []*fakeProvider{
		newFakeProvider("tesseract", core.TypeOCR, 2, nil),
		newFakeProvider("calamari", core.TypeOCR, 1, nil),
		newFakeProvider("importer", core.TypeImport, 5, nil),
		newFakeProvider("kraken", core.TypeOCR, 1, nil),
	}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.Provider(), err)
		}
	}

	if err := r.Register(newFakeProvider("calamari", core.TypeOLR, 0, nil)); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate Register() error = %v, want ErrAlreadyRegistered", err)
	}
	if err := r.Register(newFakeProvider("", core.TypeOLR, 0, nil)); err == nil {
		t.Error("expected error for empty provider id")
	}

	var order []string
	for _, p := range r.List() {
		order = append(order, p.Provider())
	}
	want := []string{"importer", "calamari", "kraken", "tesseract"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", order, want)
		}
	}

	if p, err := r.Get("kraken"); err != nil || p.Provider() != "kraken" {
		t.Errorf("Get() = %v, %v", p, err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := r.GetProcess("kraken"); err == nil {
		t.Error("expected error for a provider without processors")
	}

	if err := r.Unregister("kraken"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := r.Unregister("kraken"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unregister() error = %v, want ErrNotFound", err)
	}
	if len(r.List()) != 3 {
		t.Errorf("List() has %d providers, want 3", len(r.List()))
	}
}

func TestConfigureAndInitializeAll(t *testing.T) {
	var (
		mu       sync.Mutex
		observed = make(map[string]int)
	)
	r := New(WithJournalObserver(func(provider string, _ core.JournalEntry) {
		mu.Lock()
		observed[provider]++
		mu.Unlock()
	}))

	release := make(chan struct{})
	lazyStarted := make(chan struct{})
	providers := []*fakeProvider{
		newFakeProvider("eager-ok", core.TypeOCR, 0, nil),
		newFakeProvider("eager-fail", core.TypeOCR, 1, func(context.Context) error {
			return errors.New("model missing")
		}),
		newFakeProvider("lazy-on", core.TypeOLR, 0, func(ctx context.Context) error {
			close(lazyStarted)
			<-release
			return nil
		}),
		newFakeProvider("lazy-off", core.TypeOLR, 1, nil),
	}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	lazy := false
	cfg := &config.HostConfig{
		Name: "test",
		Providers: []config.ProviderConfig{
			{ID: "eager-ok", Type: "ocr", Enabled: true, ThreadPool: "ocr"},
			{ID: "eager-fail", Type: "ocr", Enabled: true},
			{ID: "lazy-on", Type: "olr", Eager: &lazy, Enabled: true},
			{ID: "lazy-off", Type: "olr", Eager: &lazy},
		},
	}
	for id, entry := range r.ConfigureAll(cfg) {
		if !entry.IsSuccessful() || entry.TargetStatus() != core.StatusConfigured {
			t.Errorf("configure %s: %s", id, entry)
		}
	}
	if p, _ := r.Get("eager-ok"); p.ThreadPool() != "ocr" || p.Configuration() == nil {
		t.Errorf("settings not applied: pool %q", p.ThreadPool())
	}

	run, err := r.InitializeAll(context.Background())
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Provider != "eager-fail" {
		t.Fatalf("InitializeAll() error = %v, want eager-fail InitError", err)
	}

	<-lazyStarted
	statuses := r.Statuses()
	if statuses["eager-ok"] != core.StatusActive || statuses["eager-fail"] != core.StatusInactive {
		t.Errorf("eager statuses = %v", statuses)
	}
	if statuses["lazy-on"] != core.StatusInitializing {
		t.Errorf("lazy-on status = %s, want initializing", statuses["lazy-on"])
	}
	if statuses["lazy-off"] != core.StatusConfigured {
		t.Errorf("lazy-off status = %s, want configured", statuses["lazy-off"])
	}
	if lazyIDs := run.Lazy(); len(lazyIDs) != 1 || lazyIDs[0] != "lazy-on" {
		t.Errorf("Lazy() = %v", lazyIDs)
	}

	close(release)
	if err := run.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if s := r.Statuses()["lazy-on"]; s != core.StatusActive {
		t.Errorf("lazy-on status after Wait = %s", s)
	}

	mu.Lock()
	defer mu.Unlock()
	// The loaded entry predates the registration.
	for _, p := range providers {
		if want := len(p.Journal()) - 1; observed[p.Provider()] != want {
			t.Errorf("observed %d entries of %s, want %d", observed[p.Provider()], p.Provider(), want)
		}
	}
}

func TestBackgroundInitializationFailures(t *testing.T) {
	r := New(WithInitializeLimit(1))
	for _, id := range []string{"a", "b"} {
		if err := r.Register(newFakeProvider(id, core.TypeOCR, 0, func(context.Context) error {
			return core.NewProviderError("no license", nil)
		})); err != nil {
			t.Fatal(err)
		}
	}

	lazy := false
	r.ConfigureAll(&config.HostConfig{Providers: []config.ProviderConfig{
		{ID: "a", Type: "ocr", Eager: &lazy, Enabled: true},
		{ID: "b", Type: "ocr", Eager: &lazy, Enabled: true},
	}})

	run, err := r.InitializeAll(context.Background())
	if err != nil {
		t.Fatalf("InitializeAll() error = %v", err)
	}
	err = run.Wait()
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("Wait() error = %v, want InitError", err)
	}
	for _, id := range []string{"a", "b"} {
		if s := r.Statuses()[id]; s != core.StatusInactive {
			t.Errorf("%s status = %s, want inactive", id, s)
		}
	}
}

func TestLifecycleOperationsWithTelemetry(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	var (
		mu     sync.Mutex
		events []telemetry.Event
	)
	tel.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, nil)

	r := New(WithTelemetry(tel))
	p := newFakeProvider("tesseract", core.TypeOCR, 0, nil)
	p.premise = env.NewPremise(env.PremiseWarn, env.Text("no folios"))
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}
	r.ConfigureAll(&config.HostConfig{Providers: []config.ProviderConfig{{ID: "tesseract", Type: "ocr"}}})

	ctx := context.Background()
	if _, err := r.InitializeAll(ctx); err != nil {
		t.Fatalf("InitializeAll() error = %v", err)
	}
	if p.Status() != core.StatusInactive {
		t.Fatalf("status = %s, want inactive", p.Status())
	}

	entry, err := r.Start(ctx, "tesseract", "alice")
	if err != nil || !entry.IsSuccessful() || p.Status() != core.StatusActive {
		t.Errorf("Start() = %v, %v", entry, err)
	}
	entry, err = r.Restart(ctx, "tesseract", "alice")
	if err != nil || !entry.IsSuccessful() {
		t.Errorf("Restart() = %v, %v", entry, err)
	}
	entry, err = r.Stop(ctx, "tesseract", "alice")
	if err != nil || !entry.IsSuccessful() || p.Status() != core.StatusInactive {
		t.Errorf("Stop() = %v, %v", entry, err)
	}
	if entry, _ := r.Stop(ctx, "tesseract", "alice"); entry.IsSuccessful() {
		t.Error("stopping an inactive provider must be rejected")
	}
	if _, err := r.Start(ctx, "missing", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Start(missing) error = %v", err)
	}

	premise, err := r.Premise("tesseract", nil)
	if err != nil || premise.State() != env.PremiseWarn {
		t.Errorf("Premise() = %v, %v", premise.State(), err)
	}

	mu.Lock()
	defer mu.Unlock()
	if want := len(p.Journal()) - 1; len(events) != want {
		t.Errorf("published %d events, want %d", len(events), want)
	}
}
