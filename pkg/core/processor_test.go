package core

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/process"
)

type recordingCallback struct {
	mu       sync.Mutex
	progress []float32
	stdout   []string
	stderr   []string
	locks    []string
}

func (r *recordingCallback) UpdatedProgress(p float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingCallback) UpdatedStandardOutput(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout = append(r.stdout, s)
}

func (r *recordingCallback) UpdatedStandardError(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stderr = append(r.stderr, s)
}

func (r *recordingCallback) LockSnapshot(comment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = append(r.locks, comment)
}

// echoProcessor reports its arguments and completes.
type echoProcessor struct {
	CoreProcessor
}

func (p *echoProcessor) Execute(ctx context.Context, cb Callback, fw *env.Framework, args *model.ModelArgument) State {
	if !p.Begin(ctx, "echo", cb, fw) {
		return p.Canceled()
	}
	p.UpdatedStandardOutput(args.String())
	p.UpdatedProgress(0.5)
	p.LockSnapshot("echo done")
	return p.Complete()
}

func testFramework() *env.Framework {
	return &env.Framework{UID: -1, GID: -1, Application: &env.Application{DateLayout: "15:04"}}
}

func TestProcessorCompletes(t *testing.T) {
	cb := &recordingCallback{}
	args, _ := model.NewModelArgument(model.StringArgument("lang", "deu"))

	p := &echoProcessor{}
	state := p.Execute(context.Background(), cb, testFramework(), args)

	if state != StateCompleted {
		t.Fatalf("Execute() = %s, want %s", state, StateCompleted)
	}
	if len(cb.progress) != 3 || cb.progress[0] != 0 || cb.progress[1] != 0.5 || cb.progress[2] != 1 {
		t.Errorf("progress = %v", cb.progress)
	}
	if len(cb.locks) != 1 || cb.locks[0] != "echo done" {
		t.Errorf("locks = %v", cb.locks)
	}

	// Every output update carries the output so far.
	if len(cb.stdout) != 3 {
		t.Fatalf("stdout updates = %d, want 3", len(cb.stdout))
	}
	for i := 1; i < len(cb.stdout); i++ {
		if !strings.HasPrefix(cb.stdout[i], cb.stdout[i-1]) {
			t.Errorf("update %d is not cumulative: %q", i, cb.stdout[i])
		}
	}
	final := cb.stdout[len(cb.stdout)-1]
	for _, want := range []string{": Start spi 'echo'.\n", ": lang[string: deu]\n", ": echo completed.\n"} {
		if !strings.Contains(final, want) {
			t.Errorf("output %q does not contain %q", final, want)
		}
	}
	if p.StandardOutput() != final {
		t.Error("StandardOutput() differs from the last update")
	}
}

func TestProcessorCanceledBeforeExecute(t *testing.T) {
	cb := &recordingCallback{}
	p := &echoProcessor{}
	p.Cancel()

	state := p.Execute(context.Background(), cb, testFramework(), nil)

	if state != StateCanceled {
		t.Errorf("Execute() = %s, want %s", state, StateCanceled)
	}
	if len(cb.locks) != 0 {
		t.Error("canceled processor must not lock snapshots")
	}
}

func TestProcessorNilCallback(t *testing.T) {
	p := &echoProcessor{}
	if state := p.Execute(context.Background(), nil, testFramework(), nil); state != StateCompleted {
		t.Errorf("Execute() = %s", state)
	}
}

func TestProcessorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &CoreProcessor{}
	p.Begin(ctx, "ctx", nil, testFramework())

	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for !p.IsCanceled() {
		if time.Now().After(deadline) {
			t.Fatal("context cancellation did not cancel the processor")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessorInterrupted(t *testing.T) {
	cb := &recordingCallback{}
	p := &CoreProcessor{}
	p.Begin(context.Background(), "broken", cb, testFramework())

	if state := p.Interrupted(errors.New("input missing")); state != StateInterrupted {
		t.Errorf("Interrupted() = %s", state)
	}
	if len(cb.stderr) != 1 || !strings.HasSuffix(cb.stderr[0], ": input missing\n") {
		t.Errorf("stderr = %v", cb.stderr)
	}
}

func TestProgressIsClamped(t *testing.T) {
	cb := &recordingCallback{}
	p := &CoreProcessor{}
	p.Begin(context.Background(), "clamp", cb, testFramework())

	p.UpdatedProgress(-1)
	p.UpdatedProgress(2)

	got := cb.progress[len(cb.progress)-2:]
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("progress = %v", got)
	}
}

func TestCancelTerminatesBoundProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	sp, err := process.New("/bin/sh")
	if err != nil {
		t.Fatal(err)
	}
	if err := sp.ExecuteBackground(context.Background(), "-c", "exec sleep 30"); err != nil {
		t.Fatalf("ExecuteBackground() error = %v", err)
	}

	p := &CoreProcessor{}
	p.Begin(context.Background(), "sleep", nil, testFramework())
	p.Bind(sp)
	p.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sp.Wait(ctx); err != nil {
		t.Fatalf("process was not terminated: %v", err)
	}
	if !p.IsCanceled() {
		t.Error("IsCanceled() = false")
	}
}
