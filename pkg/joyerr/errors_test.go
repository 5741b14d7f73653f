package joyerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_RetriableDefaults(t *testing.T) {
	assert.True(t, New(CodeTransport, "reset").Retriable())
	assert.True(t, New(CodeNoAvailableNode, "none eligible").Retriable())
	assert.False(t, New(CodeTimeout, "deadline").Retriable())
	assert.False(t, New(CodeRemote, "app error").Retriable())
	assert.False(t, New(CodeSerialization, "bad frame").Retriable())
}

func TestError_WithRetriableOverride(t *testing.T) {
	e := New(CodeRemote, "server said retry").WithRetriable(true)
	assert.True(t, e.Retriable())
}

func TestError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	e := Wrap(CodeTransport, "send failed", cause)

	require.ErrorIs(t, e, cause)
	assert.NotContains(t, e.Error(), "connection reset") // message stays redacted
}

func TestError_CorrelationID(t *testing.T) {
	e := New(CodeTimeout, "deadline exceeded").WithCorrelation("req-7/chan-2")
	assert.Contains(t, e.Error(), "req-7/chan-2")
}

func TestAsAndIsCode(t *testing.T) {
	var err error = New(CodeOverload, "queue full")
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeOverload, e.Code)
	assert.True(t, IsCode(err, CodeOverload))
	assert.False(t, IsCode(err, CodeTimeout))
}
