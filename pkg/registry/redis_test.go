package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

func skipIfNoRedis(t *testing.T) {
	if os.Getenv("REDIS_TEST_ADDR") == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis registry tests")
	}
}

func TestRedisBackend_RegisterAndSubscribe(t *testing.T) {
	skipIfNoRedis(t)

	b, err := NewRedisBackend(RedisOptions{Addr: os.Getenv("REDIS_TEST_ADDR")})
	require.NoError(t, err)
	defer b.Close()

	key := Key{Interface: "joyrpc.test.Echo", Alias: "redis-test"}
	u := joyurl.New("grpc", "127.0.0.1", 9100, key.Interface, map[string]string{"weight": "10"})

	snapCh := make(chan Snapshot, 4)
	handle, err := b.SubscribeCluster(context.Background(), key, func(s Snapshot) { snapCh <- s })
	require.NoError(t, err)
	defer handle.Unsubscribe()

	<-snapCh // initial replay

	require.NoError(t, b.Register(context.Background(), key, u))

	select {
	case snap := <-snapCh:
		require.Len(t, snap.Providers, 1)
		assert.True(t, snap.Providers[0].Equals(u))
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive registration update")
	}

	require.NoError(t, b.Deregister(context.Background(), key, u))
	select {
	case snap := <-snapCh:
		assert.Empty(t, snap.Providers)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive deregistration update")
	}
}

func TestParseURL_RoundTripsKeyFormat(t *testing.T) {
	u := joyurl.New("grpc", "10.0.0.5", 8080, "joyrpc.test.Echo", map[string]string{"weight": "5", "alias": "g1"})
	parsed, err := parseURL(u.String())
	require.NoError(t, err)
	assert.True(t, u.Equals(parsed))
}
