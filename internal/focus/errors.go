package focus

import (
	"errors"
	"fmt"
	"time"
)

// ErrOverloaded is matched by every OverloadedError.
var ErrOverloaded = errors.New("day overloaded")

// OverloadedError rejects a mutation because the user's per-day event cap is
// already met.
type OverloadedError struct {
	UserID string
	Day    time.Time
	Count  int
	Max    int
}

func (e *OverloadedError) Error() string {
	return fmt.Sprintf("day %s already has %d event(s), limit is %d",
		e.Day.Format("2006-01-02"), e.Count, e.Max)
}

func (e *OverloadedError) Unwrap() error {
	return ErrOverloaded
}

// IsOverloaded reports whether err is an overloaded-day rejection.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}
