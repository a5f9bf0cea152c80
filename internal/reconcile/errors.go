package reconcile

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/planner/internal/conflict"
)

var (
	// ErrAccountNotLinked is returned when a user has no usable remote
	// credential. It is never retried.
	ErrAccountNotLinked = errors.New("account not linked to a remote calendar")

	// ErrScheduleConflict is matched by every *ConflictError.
	ErrScheduleConflict = errors.New("schedule conflict")
)

// ConflictError aborts a cycle before its push phase. It carries both sides
// of every overlapping pair.
type ConflictError struct {
	Report *conflict.Report
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v for user %s: %s", ErrScheduleConflict, e.Report.UserID, e.Report)
}

func (e *ConflictError) Unwrap() error {
	return ErrScheduleConflict
}

// IsAccountNotLinked reports whether err is a missing-credential failure.
func IsAccountNotLinked(err error) bool {
	return errors.Is(err, ErrAccountNotLinked)
}

// AsConflict returns the conflict report carried by err, if any.
func AsConflict(err error) (*conflict.Report, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Report, true
	}
	return nil, false
}
