package stores

import (
	"context"
	"sync"

	"github.com/ocr4all/spi/pkg/core"
)

// NewJournalRecord converts a journal entry of a provider into a record.
func NewJournalRecord(provider string, entry core.JournalEntry) *JournalRecord {
	r := &JournalRecord{
		ID:           entry.ID().String(),
		Provider:     provider,
		CreatedAt:    entry.Date(),
		Successful:   entry.IsSuccessful(),
		Level:        string(entry.Level()),
		Message:      entry.Message(),
		TargetStatus: string(entry.TargetStatus()),
	}
	if user, ok := entry.User(); ok {
		r.User = &user
	}
	if source, ok := entry.SourceStatus(); ok {
		s := string(source)
		r.SourceStatus = &s
	}
	return r
}

// JournalObserver returns an observer persisting every journal entry.
// Storage errors are passed to onError, which may be nil.
func JournalObserver(ctx context.Context, store Store, onError func(error)) core.JournalObserver {
	return func(provider string, entry core.JournalEntry) {
		if err := store.AppendJournalEntry(ctx, NewJournalRecord(provider, entry)); err != nil && onError != nil {
			onError(err)
		}
	}
}

// ExecutionRecorder is a processor callback persisting the progress, output
// and snapshot locks of an execution before forwarding them.
type ExecutionRecorder struct {
	ctx   context.Context
	store Store
	id    string
	next  core.Callback

	mu  sync.Mutex
	err error
}

var _ core.Callback = (*ExecutionRecorder)(nil)

// NewExecutionRecorder creates the execution record and returns a callback
// updating it. Updates are stored even after ctx is canceled. A nil next
// callback is replaced by core.NopCallback.
func NewExecutionRecorder(ctx context.Context, store Store, execution *Execution, next core.Callback) (*ExecutionRecorder, error) {
	if next == nil {
		next = core.NopCallback{}
	}
	if execution.Status == "" {
		execution.Status = ExecutionStatusRunning
	}
	if err := store.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}
	return &ExecutionRecorder{ctx: context.WithoutCancel(ctx), store: store, id: execution.ID, next: next}, nil
}

func (r *ExecutionRecorder) record(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// Err returns the first storage error, if any.
func (r *ExecutionRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *ExecutionRecorder) UpdatedProgress(progress float32) {
	r.record(r.store.UpdateExecutionProgress(r.ctx, r.id, float64(progress)))
	r.next.UpdatedProgress(progress)
}

func (r *ExecutionRecorder) UpdatedStandardOutput(output string) {
	r.record(r.store.UpdateExecutionOutput(r.ctx, r.id, &output, nil))
	r.next.UpdatedStandardOutput(output)
}

func (r *ExecutionRecorder) UpdatedStandardError(output string) {
	r.record(r.store.UpdateExecutionOutput(r.ctx, r.id, nil, &output))
	r.next.UpdatedStandardError(output)
}

func (r *ExecutionRecorder) LockSnapshot(comment string) {
	r.record(r.store.AppendSnapshotLock(r.ctx, r.id, comment))
	r.next.LockSnapshot(comment)
}

// Finish records the final state of the execution and the exit code of its
// external process, if known.
func (r *ExecutionRecorder) Finish(state core.State, exitCode *int) error {
	if err := r.store.FinishExecution(r.ctx, r.id, ExecutionStatus(state), exitCode); err != nil {
		return err
	}
	return r.Err()
}
