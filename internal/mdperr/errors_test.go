package mdperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := New(CodeNoTargets, "no targets", nil)
		assert.Equal(t, "mapper NO_TARGETS: no targets", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := New(CodeTransientBroker, "publish failed", cause)
		assert.Contains(t, err.Error(), "boom")
		assert.Contains(t, err.Error(), "TRANSIENT_BROKER")
	})
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(CodeTransientBroker, "publish failed", cause)

	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_Is(t *testing.T) {
	err := NewDuplicateToken("tok-1")

	assert.True(t, errors.Is(err, ErrDuplicateToken))
	assert.True(t, errors.Is(err, NewDuplicateToken("tok-2")), "Is compares by code, not token")
	assert.False(t, errors.Is(err, ErrUnknownToken))
}

func TestWithContext(t *testing.T) {
	err := New(CodeMalformed, "bad frame", nil).WithContext("size", 42)

	assert.Equal(t, 42, err.Context["size"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientBroker("publish", errors.New("x"))))
	assert.False(t, IsRetryable(NewDuplicateToken("tok")))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewDuplicateToken("tok")))
	assert.True(t, IsPermanent(NewMalformed(errors.New("x"))))
	assert.False(t, IsPermanent(NewTransientBroker("publish", errors.New("x"))))
	assert.False(t, IsPermanent(nil))
}
