package joyurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_EqualsAndKey(t *testing.T) {
	a := New("grpc", "10.0.0.1", 20880, "com.joyrpc.Echo", map[string]string{"weight": "100"})
	b := New("grpc", "10.0.0.1", 20880, "com.joyrpc.Echo", map[string]string{"weight": "100"})
	c := New("grpc", "10.0.0.1", 20880, "com.joyrpc.Echo", map[string]string{"weight": "200"})

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestURL_Getters(t *testing.T) {
	u := New("grpc", "127.0.0.1", 20880, "Echo", map[string]string{
		"weight": "50",
		"warmup": "5000",
		"ssl":    "true",
		"rate":   "1.5",
	})

	assert.Equal(t, 50, u.GetInt("weight", 100))
	assert.Equal(t, 100, u.GetInt("missing", 100))
	assert.Equal(t, 5000, u.GetInt("warmup", 0))
	assert.True(t, u.GetBool("ssl", false))
	assert.Equal(t, 1.5, u.GetFloat("rate", 0))
	assert.Equal(t, "127.0.0.1:20880", u.Address())
}

func TestURL_WithParamDoesNotMutate(t *testing.T) {
	u := New("grpc", "h", 1, "I", map[string]string{"a": "1"})
	v := u.WithParam("a", "2")

	require.Equal(t, "1", u.GetParam("a", ""))
	require.Equal(t, "2", v.GetParam("a", ""))
}

func TestURL_ParamsCopyIsIsolated(t *testing.T) {
	orig := map[string]string{"a": "1"}
	u := New("grpc", "h", 1, "I", orig)
	orig["a"] = "mutated"

	assert.Equal(t, "1", u.GetParam("a", ""))

	cp := u.Params()
	cp["a"] = "mutated-copy"
	assert.Equal(t, "1", u.GetParam("a", ""))
}
