package annotate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), FailureCanceled},
		{"deadline", context.DeadlineExceeded, FailureTransient},
		{"rate limited", &StatusError{StatusCode: 429, Err: errors.New("slow down")}, FailureTransient},
		{"overloaded", &StatusError{StatusCode: 529, Err: errors.New("overloaded")}, FailureTransient},
		{"unauthorized", &StatusError{StatusCode: 401, Err: errors.New("bad key")}, FailurePermanent},
		{"bad request", &StatusError{StatusCode: 400, Err: errors.New("too long")}, FailurePermanent},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), FailureTransient},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), FailureTransient},
		{"dns string", errors.New("lookup api.openai.com: no such host"), FailureTransient},
		{"empty completion", ErrEmptyCompletion, FailurePermanent},
		{"other", errors.New("json: cannot unmarshal"), FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWithStatus(t *testing.T) {
	base := errors.New("boom")
	assert.Same(t, base, withStatus(base, 0))
	assert.Nil(t, withStatus(nil, 500))

	wrapped := withStatus(base, 502)
	var se *StatusError
	assert.ErrorAs(t, wrapped, &se)
	assert.Equal(t, 502, se.StatusCode)
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "boom", wrapped.Error())
}
