package hound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_UnwrapsInner(t *testing.T) {
	inner := errors.New("boom")
	err := newError(ErrIOError, "read", inner)
	require.ErrorIs(t, err, inner)
}

func TestError_IsMatchesByCodeOnly(t *testing.T) {
	a := newError(ErrContextActive, "context_start", nil)
	b := newError(ErrContextActive, "context_stop", errors.New("different"))
	require.True(t, errors.Is(a, b))

	c := newError(ErrContextNotActive, "context_start", nil)
	require.False(t, errors.Is(a, c))
}

func TestCodeOf(t *testing.T) {
	err := newError(ErrPeriodUnsupported, "context_alloc", nil)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ErrPeriodUnsupported, code)

	_, ok = CodeOf(errors.New("plain"))
	require.False(t, ok)
}

func TestErrorCode_StringCoversAllValues(t *testing.T) {
	for code := ErrNullArgument; code <= ErrDriverAlreadyPresent; code++ {
		require.NotContains(t, code.String(), "error-code(")
	}
}
