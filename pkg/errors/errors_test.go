package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, KindValidation, Validation("bad input").Kind)
	assert.Equal(t, KindDuplicateKey, DuplicateKey("seen before").Kind)
	assert.Equal(t, KindInvalidConfig, InvalidConfig("negative weight").Kind)
	assert.Equal(t, KindTransport, Transport("connection reset").Kind)

	up := UpstreamSignal("sentiment", "timed out")
	assert.Equal(t, KindUpstreamSignal, up.Kind)
	assert.Equal(t, "sentiment", up.Provider)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "VALIDATION: bad input", Validation("bad input").Error())

	up := UpstreamSignal("value", "timed out")
	assert.Equal(t, "UPSTREAM_SIGNAL: timed out (provider value)", up.Error())

	cause := stderrors.New("dial tcp: refused")
	assert.Equal(t, "TRANSPORT: append failed (caused by: dial tcp: refused)",
		Transport("append failed").WithCause(cause).Error())

	assert.Equal(t, "UPSTREAM_SIGNAL: timed out (provider value, caused by: dial tcp: refused)",
		up.WithCause(cause).Error())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, Validation("bad").IsRetryable())
	assert.False(t, InvalidConfig("bad").IsRetryable())
	assert.False(t, DuplicateKey("dup").IsRetryable())
	assert.True(t, Transport("flaky").IsRetryable())
	assert.True(t, UpstreamSignal("sentiment", "busy").IsRetryable())

	assert.True(t, Validation("bad").IsFatal())
	assert.False(t, Transport("flaky").IsFatal())
}

func TestRetryableOverrides(t *testing.T) {
	base := Transport("flaky")

	fatal := base.AsFatal()
	assert.False(t, fatal.IsRetryable())
	assert.True(t, base.IsRetryable(), "override must not mutate the original")

	retryable := Validation("bad").AsRetryable()
	assert.True(t, retryable.IsRetryable())
}

func TestCopyOnWriteModifiers(t *testing.T) {
	base := UpstreamSignal("sentiment", "status")

	withCode := base.WithStatusCode(503)
	assert.Equal(t, 503, withCode.StatusCode)
	assert.Zero(t, base.StatusCode)

	cause := stderrors.New("boom")
	withCause := base.WithCause(cause)
	assert.Equal(t, cause, withCause.Cause)
	assert.Nil(t, base.Cause)
}

func TestWrapAndUnwrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindTransport, "nothing"))

	cause := stderrors.New("root")
	wrapped := Wrap(cause, KindTransport, "append failed")
	require.NotNil(t, wrapped)
	assert.True(t, stderrors.Is(wrapped, cause))

	// Chains through fmt wrapping too.
	outer := fmt.Errorf("context: %w", wrapped)
	var appErr *Error
	require.True(t, stderrors.As(outer, &appErr))
	assert.Equal(t, KindTransport, appErr.Kind)
}

func TestKindPredicates(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad")))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("opaque")))

	wrapped := fmt.Errorf("outer: %w", DuplicateKey("dup"))
	assert.True(t, IsDuplicateKey(wrapped))
	assert.False(t, IsValidation(wrapped))

	assert.True(t, IsUpstreamSignal(UpstreamSignal("p", "m")))
	assert.True(t, IsInvalidConfig(InvalidConfig("m")))
	assert.True(t, IsTransport(Transport("m")))
	assert.False(t, IsTransport(nil))
}
