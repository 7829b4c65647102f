// Package ops drives long-running operations through an explicit state
// machine with per-kind mutual exclusion, cooperative cancellation, and
// immutable record snapshots.
package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
)

// Kind categorizes a long-running operation. It is the mutual-exclusion
// key: at most one operation per kind may exist until cleared.
type Kind string

const (
	KindBackupCreate     Kind = "backupCreate"
	KindBackupRestore    Kind = "backupRestore"
	KindBackupDelete     Kind = "backupDelete"
	KindServiceInstall   Kind = "serviceInstall"
	KindServiceConfigure Kind = "serviceConfigure"
)

// Kinds returns every operation kind, in stable order.
func Kinds() []Kind {
	return []Kind{
		KindBackupCreate,
		KindBackupRestore,
		KindBackupDelete,
		KindServiceInstall,
		KindServiceConfigure,
	}
}

// ParseKind validates a user-supplied kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// State is a position in the operation lifecycle. Idle is the absence of a
// record for a kind; records themselves only ever carry the other states.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s has no outgoing transition except clearing.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// ErrorKind classifies a terminal failure for display.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindFilesystem ErrorKind = "filesystem"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindTooLate    ErrorKind = "too_late"
	ErrorKindExternal   ErrorKind = "external"
)

// kindForError maps an action failure to its displayed classification.
func kindForError(err error) ErrorKind {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ErrorKindFilesystem
	}
	return ErrorKindExternal
}

// Record is one immutable snapshot of an operation. Transitions never
// mutate a record; they publish a replacement snapshot.
type Record struct {
	ID           uuid.UUID  `json:"id"`
	Kind         Kind       `json:"kind"`
	State        State      `json:"state"`
	RequestedAt  time.Time  `json:"requestedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Progress     float64    `json:"progress,omitempty"`
	Error        ErrorKind  `json:"error,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Result       any        `json:"result,omitempty"`
}

// ConflictError rejects a request while a record for the same kind exists.
type ConflictError struct {
	Kind   Kind
	Active uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("operation %s already exists (id %s); clear it first", e.Kind, e.Active)
}

// TooLateError rejects a cancel or clear issued in the wrong state.
type TooLateError struct {
	Kind  Kind
	State State
	Verb  string
}

func (e *TooLateError) Error() string {
	return fmt.Sprintf("cannot %s operation %s in state %s", e.Verb, e.Kind, e.State)
}

// ExternalError wraps a failure reported by an opaque backup or install
// action.
type ExternalError struct {
	Kind Kind
	Err  error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Kind, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}
