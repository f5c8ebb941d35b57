package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a journal entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Validate checks if the level is valid.
func (l Level) Validate() error {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return nil
	default:
		return fmt.Errorf("invalid journal level: %s", l)
	}
}

// JournalEntry records one attempted lifecycle operation. Entries are
// immutable; a rejected operation has the same source and target status.
type JournalEntry struct {
	id         uuid.UUID
	date       time.Time
	user       string
	successful bool
	level      Level
	message    string
	source     Status
	target     Status
}

func newJournalEntry(user string, successful bool, level Level, message string, source, target Status) JournalEntry {
	return JournalEntry{
		id:         uuid.New(),
		date:       time.Now(),
		user:       user,
		successful: successful,
		level:      level,
		message:    message,
		source:     source,
		target:     target,
	}
}

// ID returns the unique id of the entry.
func (e JournalEntry) ID() uuid.UUID { return e.id }

// Date returns the time the entry was created.
func (e JournalEntry) Date() time.Time { return e.date }

// User returns the user who requested the operation, if known.
func (e JournalEntry) User() (string, bool) { return e.user, e.user != "" }

// IsSuccessful returns true if the operation was performed.
func (e JournalEntry) IsSuccessful() bool { return e.successful }

// Level returns the severity of the entry.
func (e JournalEntry) Level() Level { return e.level }

// Message returns the journal message.
func (e JournalEntry) Message() string { return e.message }

// SourceStatus returns the status before the operation. The entry recording
// the instantiation of a provider has none.
func (e JournalEntry) SourceStatus() (Status, bool) { return e.source, e.source != "" }

// TargetStatus returns the status after the operation.
func (e JournalEntry) TargetStatus() Status { return e.target }

// String renders the entry for logs and the command line.
func (e JournalEntry) String() string {
	source := "-"
	if e.source != "" {
		source = string(e.source)
	}
	return fmt.Sprintf("%s [%s] %s -> %s: %s",
		e.date.Format(time.RFC3339), e.level, source, e.target, e.message)
}
