package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a database of its own.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// AppendJournalEntry stores a journal record. Records are never updated.
func (s *SQLiteStore) AppendJournalEntry(ctx context.Context, record *JournalRecord) error {
	query := `
		INSERT INTO journal_entries (
			id, provider, created_at, user_name, successful, level, message, source_status, target_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Provider,
		record.CreatedAt,
		record.User,
		record.Successful,
		record.Level,
		record.Message,
		record.SourceStatus,
		record.TargetStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

// ListJournal lists journal records in chronological order.
func (s *SQLiteStore) ListJournal(ctx context.Context, filter JournalFilter) ([]*JournalRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Provider != nil {
		conditions = append(conditions, "provider = ?")
		args = append(args, *filter.Provider)
	}
	if filter.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, *filter.Level)
	}

	query := `
		SELECT id, provider, created_at, user_name, successful, level, message, source_status, target_status
		FROM journal_entries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?"
	args = append(args, limitOrAll(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	records := []*JournalRecord{}
	for rows.Next() {
		r := &JournalRecord{}
		err := rows.Scan(
			&r.ID,
			&r.Provider,
			&r.CreatedAt,
			&r.User,
			&r.Successful,
			&r.Level,
			&r.Message,
			&r.SourceStatus,
			&r.TargetStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}

	return records, nil
}

// CreateExecution stores a new execution.
func (s *SQLiteStore) CreateExecution(ctx context.Context, execution *Execution) error {
	query := `
		INSERT INTO executions (
			id, provider, user_name, status, progress, arguments,
			standard_output, standard_error, exit_code, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		execution.ID,
		execution.Provider,
		execution.User,
		execution.Status,
		execution.Progress,
		execution.Arguments,
		execution.StandardOutput,
		execution.StandardError,
		execution.ExitCode,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

const executionColumns = `
	id, provider, user_name, status, progress, arguments,
	standard_output, standard_error, exit_code, started_at, completed_at
`

func scanExecution(row interface{ Scan(...interface{}) error }) (*Execution, error) {
	e := &Execution{}
	var exitCode sql.NullInt64
	err := row.Scan(
		&e.ID,
		&e.Provider,
		&e.User,
		&e.Status,
		&e.Progress,
		&e.Arguments,
		&e.StandardOutput,
		&e.StandardError,
		&exitCode,
		&e.StartedAt,
		&e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	return e, nil
}

// GetExecution retrieves an execution by id.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE id = ?"

	e, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return e, nil
}

// UpdateExecutionProgress sets the progress of a running execution.
func (s *SQLiteStore) UpdateExecutionProgress(ctx context.Context, id string, progress float64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE executions SET progress = ? WHERE id = ?`, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update execution progress: %w", err)
	}
	return expectRow(result, "execution", id)
}

// UpdateExecutionOutput replaces the accumulated output of an execution.
// Nil outputs are left unchanged.
func (s *SQLiteStore) UpdateExecutionOutput(ctx context.Context, id string, stdout, stderr *string) error {
	query := `
		UPDATE executions
		SET standard_output = COALESCE(?, standard_output),
		    standard_error = COALESCE(?, standard_error)
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, stdout, stderr, id)
	if err != nil {
		return fmt.Errorf("failed to update execution output: %w", err)
	}
	return expectRow(result, "execution", id)
}

// FinishExecution records the final status of an execution.
func (s *SQLiteStore) FinishExecution(ctx context.Context, id string, status ExecutionStatus, exitCode *int) error {
	if !status.IsFinal() {
		return fmt.Errorf("execution status %s is not final", status)
	}

	query := `
		UPDATE executions
		SET status = ?, exit_code = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return expectRow(result, "execution", id)
}

// ListExecutions lists executions, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, provider *string, limit, offset int) ([]*Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions"
	var args []interface{}
	if provider != nil {
		query += " WHERE provider = ?"
		args = append(args, *provider)
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limitOrAll(limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions := []*Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// AppendSnapshotLock records a snapshot lock request of an execution.
func (s *SQLiteStore) AppendSnapshotLock(ctx context.Context, executionID, comment string) error {
	query := `INSERT INTO snapshot_locks (execution_id, comment, locked_at) VALUES (?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, executionID, comment, time.Now()); err != nil {
		return fmt.Errorf("failed to append snapshot lock: %w", err)
	}
	return nil
}

// ListSnapshotLocks lists the snapshot locks of an execution in request
// order.
func (s *SQLiteStore) ListSnapshotLocks(ctx context.Context, executionID string) ([]*SnapshotLock, error) {
	query := `
		SELECT id, execution_id, comment, locked_at
		FROM snapshot_locks
		WHERE execution_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot locks: %w", err)
	}
	defer rows.Close()

	locks := []*SnapshotLock{}
	for rows.Next() {
		l := &SnapshotLock{}
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.Comment, &l.LockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot lock: %w", err)
		}
		locks = append(locks, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot locks: %w", err)
	}

	return locks, nil
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// limitOrAll maps a non-positive limit to SQLite's unbounded LIMIT.
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
