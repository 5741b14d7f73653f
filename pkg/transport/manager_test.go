package transport

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
)

func testURL() *joyurl.URL {
	return joyurl.New("grpc", "127.0.0.1", 9000, "com.joyrpc.Echo", nil)
}

func pipeOpener(dialCount *int32) Opener {
	return func(ctx context.Context, key string) (*Channel, error) {
		atomic.AddInt32(dialCount, 1)
		clientConn, serverConn := net.Pipe()
		go func() {
			buf := make([]byte, 1)
			for {
				if _, err := serverConn.Read(buf); err != nil {
					return
				}
			}
		}()
		return New(clientConn, Options{HeartbeatInterval: time.Hour}, nil), nil
	}
}

func TestManager_ConnectReusesOpenedChannel(t *testing.T) {
	m := NewManager()
	var dials int32
	opener := pipeOpener(&dials)
	u := testURL()

	ch1, err := m.Connect(context.Background(), u, opener)
	require.NoError(t, err)
	ch2, err := m.Connect(context.Background(), u, opener)
	require.NoError(t, err)

	assert.Same(t, ch1, ch2)
	assert.Equal(t, int32(1), dials)

	m.Release(u, false)
	m.Release(u, false)
}

func TestManager_ReleaseToZeroClosesChannel(t *testing.T) {
	m := NewManager()
	var dials int32
	opener := pipeOpener(&dials)
	u := testURL()

	ch, err := m.Connect(context.Background(), u, opener)
	require.NoError(t, err)

	m.Release(u, false)

	_, ok := m.Lookup(u)
	assert.False(t, ok)
	assert.Equal(t, StateClosed, ch.State())
}

func TestManager_ReleaseKeepAliveRetainsChannel(t *testing.T) {
	m := NewManager()
	var dials int32
	opener := pipeOpener(&dials)
	u := testURL()

	_, err := m.Connect(context.Background(), u, opener)
	require.NoError(t, err)

	m.Release(u, true)

	_, ok := m.Lookup(u)
	assert.True(t, ok)
}

func TestManager_ReconnectsAfterDialFailureWithBackoff(t *testing.T) {
	m := NewManager()
	u := testURL()

	var attempts int32
	opener := func(ctx context.Context, key string) (*Channel, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, assertErr
		}
		clientConn, serverConn := net.Pipe()
		go func() {
			buf := make([]byte, 1)
			for {
				if _, err := serverConn.Read(buf); err != nil {
					return
				}
			}
		}()
		return New(clientConn, Options{HeartbeatInterval: time.Hour}, nil), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch, err := m.Connect(ctx, u, opener)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.GreaterOrEqual(t, attempts, int32(3))
}

func TestManager_CloseAllClosesEveryChannel(t *testing.T) {
	m := NewManager()
	var dials int32
	opener := pipeOpener(&dials)

	u1 := joyurl.New("grpc", "127.0.0.1", 9001, "iface", nil)
	u2 := joyurl.New("grpc", "127.0.0.1", 9002, "iface", nil)

	ch1, err := m.Connect(context.Background(), u1, opener)
	require.NoError(t, err)
	ch2, err := m.Connect(context.Background(), u2, opener)
	require.NoError(t, err)

	m.CloseAll()

	assert.Equal(t, StateClosed, ch1.State())
	assert.Equal(t, StateClosed, ch2.State())
}

var assertErr = errDial{}

type errDial struct{}

func (errDial) Error() string { return "dial failed" }
