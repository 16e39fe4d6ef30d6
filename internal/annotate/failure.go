package annotate

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// FailureKind labels a row failure for logs and run summaries. It never
// changes how the failure is handled.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
	FailureCanceled  FailureKind = "canceled"
)

// ErrEmptyCompletion is recorded when a provider answers with only whitespace.
var ErrEmptyCompletion = errors.New("annotate: empty completion")

// StatusError attaches the provider's HTTP status to an error.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// withStatus wraps err in a StatusError when code is non-zero.
func withStatus(err error, code int) error {
	if err == nil || code == 0 {
		return err
	}
	return &StatusError{StatusCode: code, Err: err}
}

// Classify sorts a row failure into a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}

	var se *StatusError
	if errors.As(err, &se) {
		if transientStatus(se.StatusCode) {
			return FailureTransient
		}
		return FailurePermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return FailureTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"timed out",
	} {
		if strings.Contains(msg, p) {
			return FailureTransient
		}
	}
	return FailurePermanent
}

func transientStatus(code int) bool {
	switch code {
	case 408, 409, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
