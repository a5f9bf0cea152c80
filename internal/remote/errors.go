package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is matched by every *UnavailableError.
	ErrUnavailable = errors.New("remote calendar unavailable")

	// ErrRejected is matched by every *RejectedError.
	ErrRejected = errors.New("remote calendar rejected the request")

	// ErrNotSupported is returned by read-only clients for write calls.
	ErrNotSupported = errors.New("operation not supported by remote calendar")
)

// UnavailableError is a transient provider failure: outage, rate limit,
// network error or an expired credential.
type UnavailableError struct {
	Op string
	// Code is the provider's native error code, e.g. an HTTP status.
	Code      string
	Retryable bool
	Err       error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s: remote unavailable", e.Op)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }

// RejectedError is a permanent provider refusal such as a bad request.
type RejectedError struct {
	Op   string
	Code string
	Err  error
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s: remote rejected", e.Op)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func (e *RejectedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a remote failure that is safe to retry.
func IsRetryable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Retryable
}

// IsUnavailable reports whether err is a transient remote failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected reports whether err is a permanent remote refusal.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// Code returns the provider's native error code carried by err, if any.
func Code(err error) string {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Code
	}
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
