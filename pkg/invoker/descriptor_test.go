package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

func echoHandler() MethodHandler {
	return MethodHandler{
		NewArgs: func() any { return new(string) },
		Handler: func(ctx context.Context, args any) (any, error) {
			return *args.(*string), nil
		},
	}
}

func TestDescriptor_RegisterAndLookupRoundTrips(t *testing.T) {
	d := NewDescriptor("Echo")
	d.Register("", "Say", echoHandler())

	h, err := d.Lookup("", "Say")
	require.NoError(t, err)
	reply, err := h.Handler(context.Background(), h.NewArgs())
	require.NoError(t, err)
	assert.Equal(t, "", reply)
}

func TestDescriptor_LookupUnknownAliasReturnsNoSuchAlias(t *testing.T) {
	d := NewDescriptor("Echo")
	d.Register("v1", "Say", echoHandler())

	_, err := d.Lookup("v2", "Say")
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeRemote, je.Code)
	assert.Contains(t, je.Error(), "no such alias")
}

func TestDescriptor_LookupUnknownMethodReturnsNoSuchMethod(t *testing.T) {
	d := NewDescriptor("Echo")
	d.Register("", "Say", echoHandler())

	_, err := d.Lookup("", "Shout")
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeRemote, je.Code)
	assert.Contains(t, je.Error(), "no such method")
}

func TestDescriptor_DistinctAliasesHoldDistinctMethodSets(t *testing.T) {
	d := NewDescriptor("Echo")
	d.Register("v1", "Say", echoHandler())
	d.Register("v2", "Shout", echoHandler())

	_, err := d.Lookup("v1", "Shout")
	require.Error(t, err)

	_, err = d.Lookup("v2", "Say")
	require.Error(t, err)

	_, err = d.Lookup("v1", "Say")
	require.NoError(t, err)
	_, err = d.Lookup("v2", "Shout")
	require.NoError(t, err)
}
