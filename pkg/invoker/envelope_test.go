package invoker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_EncodeDecodeRoundTrips(t *testing.T) {
	payload, err := encodeEnvelope("v1", "Say", []byte(`"hello"`))
	require.NoError(t, err)

	env, err := decodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "v1", env.Alias)
	assert.Equal(t, "Say", env.Method)
	assert.Equal(t, []byte(`"hello"`), env.Args)
}

func TestEnvelope_DecodeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope([]byte("not json"))
	require.Error(t, err)
}

func TestEnvelope_EmptyAliasIsDefaultGroup(t *testing.T) {
	payload, err := encodeEnvelope("", "Say", []byte("1"))
	require.NoError(t, err)

	env, err := decodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "", env.Alias)
}
