package stores

import (
	"context"
	"time"
)

// ExecutionStatus is the status of a persisted processor execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning     ExecutionStatus = "running"
	ExecutionStatusCompleted   ExecutionStatus = "completed"
	ExecutionStatusCanceled    ExecutionStatus = "canceled"
	ExecutionStatusInterrupted ExecutionStatus = "interrupted"
)

// IsFinal returns true if the execution has ended.
func (s ExecutionStatus) IsFinal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusCanceled || s == ExecutionStatusInterrupted
}

// JournalRecord is a persisted provider journal entry.
type JournalRecord struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
	User         *string   `json:"user,omitempty"`
	Successful   bool      `json:"successful"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	SourceStatus *string   `json:"source_status,omitempty"`
	TargetStatus string    `json:"target_status"`
}

// JournalFilter selects journal records. Nil fields match everything.
type JournalFilter struct {
	Provider *string
	Level    *string
	Limit    int
	Offset   int
}

// Execution is a persisted processor execution.
type Execution struct {
	ID             string          `json:"id"`
	Provider       string          `json:"provider"`
	User           *string         `json:"user,omitempty"`
	Status         ExecutionStatus `json:"status"`
	Progress       float64         `json:"progress"`
	Arguments      string          `json:"arguments"`
	StandardOutput string          `json:"standard_output"`
	StandardError  string          `json:"standard_error"`
	ExitCode       *int            `json:"exit_code,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// SnapshotLock records a snapshot lock requested by an execution.
type SnapshotLock struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Comment     string    `json:"comment"`
	LockedAt    time.Time `json:"locked_at"`
}

// Store persists provider journals and processor executions.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	AppendJournalEntry(ctx context.Context, record *JournalRecord) error
	ListJournal(ctx context.Context, filter JournalFilter) ([]*JournalRecord, error)

	CreateExecution(ctx context.Context, execution *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecutionProgress(ctx context.Context, id string, progress float64) error
	UpdateExecutionOutput(ctx context.Context, id string, stdout, stderr *string) error
	FinishExecution(ctx context.Context, id string, status ExecutionStatus, exitCode *int) error
	ListExecutions(ctx context.Context, provider *string, limit, offset int) ([]*Execution, error)

	AppendSnapshotLock(ctx context.Context, executionID, comment string) error
	ListSnapshotLocks(ctx context.Context, executionID string) ([]*SnapshotLock, error)
}
