package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ocr4all/spi/pkg/core"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	for _, table := range []string{"journal_entries", "executions", "snapshot_locks"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestJournalObserverPersistsEntries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var failures []error
	observe := JournalObserver(ctx, store, func(err error) { failures = append(failures, err) })

	a := core.NewLifecycle("alpha", core.WithJournalObserver(observe))
	b := core.NewLifecycle("beta", core.WithJournalObserver(observe))
	a.Configure(core.Settings{Enabled: true})
	a.Initialize(ctx)
	a.Stop("alice")
	b.Stop("bob")

	if len(failures) != 0 {
		t.Fatalf("observer failures: %v", failures)
	}

	alpha := "alpha"
	records, err := store.ListJournal(ctx, JournalFilter{Provider: &alpha})
	if err != nil {
		t.Fatalf("ListJournal() error = %v", err)
	}
	journal := a.Journal()
	if len(records) != len(journal) {
		t.Fatalf("stored %d entries, want %d", len(records), len(journal))
	}
	for i, r := range records {
		if r.ID != journal[i].ID().String() {
			t.Errorf("record %d id = %s, want %s", i, r.ID, journal[i].ID())
		}
		if r.TargetStatus != string(journal[i].TargetStatus()) {
			t.Errorf("record %d target = %s", i, r.TargetStatus)
		}
	}
	if records[0].SourceStatus != nil {
		t.Error("loaded entry must not have a source status")
	}
	last := records[len(records)-1]
	if last.User == nil || *last.User != "alice" || last.TargetStatus != "inactive" {
		t.Errorf("unexpected stop record %+v", last)
	}

	warn := "warn"
	warnings, err := store.ListJournal(ctx, JournalFilter{Level: &warn})
	if err != nil {
		t.Fatalf("ListJournal() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0].Provider != "beta" || warnings[0].Successful {
		t.Errorf("warnings = %+v", warnings)
	}

	page, err := store.ListJournal(ctx, JournalFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJournal() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page has %d records, want 2", len(page))
	}
}

func TestExecutionRecorder(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	user := "alice"
	rec, err := NewExecutionRecorder(ctx, store, &Execution{
		ID:        "exec-1",
		Provider:  "tesseract",
		User:      &user,
		Arguments: `{"lang":"deu"}`,
		StartedAt: time.Now(),
	}, nil)
	if err != nil {
		t.Fatalf("NewExecutionRecorder() error = %v", err)
	}

	rec.UpdatedProgress(0.25)
	rec.UpdatedStandardOutput("a\n")
	rec.UpdatedStandardOutput("a\nb\n")
	rec.UpdatedStandardError("oops\n")
	rec.LockSnapshot("results written")

	// Updates outlive the execution context.
	cancel()
	rec.UpdatedProgress(1)

	code := 0
	if err := rec.Finish(core.StateCompleted, &code); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	e, err := store.GetExecution(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if e.Status != ExecutionStatusCompleted || e.Progress != 1 {
		t.Errorf("status = %s, progress = %v", e.Status, e.Progress)
	}
	if e.StandardOutput != "a\nb\n" || e.StandardError != "oops\n" {
		t.Errorf("output = %q, error = %q", e.StandardOutput, e.StandardError)
	}
	if e.ExitCode == nil || *e.ExitCode != 0 || e.CompletedAt == nil {
		t.Errorf("exit code = %v, completed at = %v", e.ExitCode, e.CompletedAt)
	}
	if e.User == nil || *e.User != "alice" {
		t.Errorf("user = %v", e.User)
	}

	locks, err := store.ListSnapshotLocks(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("ListSnapshotLocks() error = %v", err)
	}
	if len(locks) != 1 || locks[0].Comment != "results written" {
		t.Errorf("locks = %+v", locks)
	}
}

func TestExecutionNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetExecution(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateExecutionProgress(ctx, "missing", 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateExecutionProgress() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishExecution(ctx, "missing", ExecutionStatusCanceled, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishExecution() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishExecution(ctx, "missing", ExecutionStatusRunning, nil); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("FinishExecution(running) error = %v, want non-final status error", err)
	}
}

func TestListExecutions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, p := range []string{"tesseract", "calamari", "tesseract"} {
		err := store.CreateExecution(ctx, &Execution{
			ID:        p + "-" + string(rune('a'+i)),
			Provider:  p,
			Status:    ExecutionStatusRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateExecution() error = %v", err)
		}
	}

	all, err := store.ListExecutions(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "tesseract-c" {
		t.Errorf("executions = %d, newest = %s", len(all), all[0].ID)
	}

	provider := "tesseract"
	filtered, err := store.ListExecutions(ctx, &provider, 1, 0)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].Provider != "tesseract" || filtered[0].ExitCode != nil {
		t.Errorf("filtered = %+v", filtered)
	}
}
