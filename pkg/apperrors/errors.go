package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced record does not exist in the project.
	ErrNotFound = errors.New("not found")

	// ErrBadReference indicates an operation referenced an entity or node that
	// does not exist or belongs to a different project. The call is rejected
	// with no partial effect.
	ErrBadReference = errors.New("bad reference")

	// ErrInvalidTransition indicates a run transition was attempted from the
	// wrong state, including the loser of a concurrent launch race. Callers
	// should treat this as "already handled", not as a user-facing failure.
	ErrInvalidTransition = errors.New("invalid run transition")

	// ErrConflict indicates the record already exists.
	ErrConflict = errors.New("conflict")
)

// CommitError reports that a run's atomic output commit failed partway and
// was rolled back. The run remains in running status and nothing from the
// commit is applied; the caller may retry the completion or fail the run.
type CommitError struct {
	RunID string
	Cause error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("run %s output commit failed: %v", e.RunID, e.Cause)
}

func (e *CommitError) Unwrap() error {
	return e.Cause
}
