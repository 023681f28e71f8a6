package merge

import (
	"errors"
	"fmt"

	"github.com/colonyops/mend/internal/core/session"
)

var (
	// ErrPermissionDenied is returned when the user may not commit code.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrIncompleteMergeSet is returned when the merge commit is requested
	// while conflicted files are still pending.
	ErrIncompleteMergeSet = errors.New("merge set incomplete")
	// ErrStorageFailure is returned when the repository or database rejects a write.
	ErrStorageFailure = errors.New("storage failure")
	// ErrStale is returned when the conflicted file changed after the session
	// was opened. The session is discarded; open a new one.
	ErrStale = session.ErrStale
	// ErrNotResolved is returned when committing a session with unresolved regions.
	ErrNotResolved = errors.New("session is not resolved")
)

// CommitError describes why a commit did not happen.
type CommitError struct {
	Reason error // ErrPermissionDenied, ErrIncompleteMergeSet or ErrStorageFailure
	Err    error // underlying cause, may be nil
}

func (e *CommitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("commit: %v", e.Reason)
	}
	return fmt.Sprintf("commit: %v: %v", e.Reason, e.Err)
}

func (e *CommitError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Retryable reports whether retrying the same commit may succeed.
func (e *CommitError) Retryable() bool {
	return errors.Is(e.Reason, ErrStorageFailure)
}

func permissionDenied(err error) error {
	return &CommitError{Reason: ErrPermissionDenied, Err: err}
}

func storageFailure(err error) error {
	return &CommitError{Reason: ErrStorageFailure, Err: err}
}
