package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

func pipeChannels(t *testing.T, handler Handler) (client *Channel, server *Channel) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	client = New(clientConn, Options{HeartbeatInterval: time.Hour}, nil)
	server = New(serverConn, Options{HeartbeatInterval: time.Hour, IsServer: true}, handler)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestChannel_SubmitRoundTrip(t *testing.T) {
	echo := func(ctx context.Context, id uint64, payload []byte) ([]byte, bool) {
		out := append([]byte(nil), payload...)
		out = append(out, "-ack"...)
		return out, false
	}
	client, _ := pipeChannels(t, echo)

	fut, err := client.Submit(context.Background(), []byte("ping"), time.Now().Add(time.Second))
	require.NoError(t, err)

	payload, isErr, err := fut.Wait()
	require.NoError(t, err)
	assert.False(t, isErr)
	assert.Equal(t, "ping-ack", string(payload))
}

func TestChannel_ApplicationErrorFlag(t *testing.T) {
	failing := func(ctx context.Context, id uint64, payload []byte) ([]byte, bool) {
		return []byte("boom"), true
	}
	client, _ := pipeChannels(t, failing)

	fut, err := client.Submit(context.Background(), []byte("x"), time.Now().Add(time.Second))
	require.NoError(t, err)

	payload, isErr, err := fut.Wait()
	require.NoError(t, err)
	assert.True(t, isErr)
	assert.Equal(t, "boom", string(payload))
}

func TestChannel_SubmitRejectsOverPayloadCap(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client := New(clientConn, Options{PayloadCap: 4, HeartbeatInterval: time.Hour}, nil)
	defer client.Close()

	_, err := client.Submit(context.Background(), []byte("toolong"), time.Now().Add(time.Second))
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeOverload, je.Code)
}

func TestChannel_SubmitRejectsWhenClosed(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client := New(clientConn, Options{HeartbeatInterval: time.Hour}, nil)
	client.Close()

	_, err := client.Submit(context.Background(), []byte("x"), time.Now().Add(time.Second))
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeTransport, je.Code)
}

func TestChannel_CloseDrainsPendingWithTransportError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	// Server side accepts the connection but never answers, so the request
	// sits pending until we close the client channel directly.
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := serverConn.Read(buf); err != nil {
				return
			}
		}
	}()

	client := New(clientConn, Options{HeartbeatInterval: time.Hour}, nil)

	fut, err := client.Submit(context.Background(), []byte("x"), time.Time{})
	require.NoError(t, err)

	require.NoError(t, client.Close())

	_, _, waitErr := fut.Wait()
	require.Error(t, waitErr)
	je, ok := joyerr.As(waitErr)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeTransport, je.Code)
}

func TestChannel_AttrBag(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	client := New(clientConn, Options{HeartbeatInterval: time.Hour}, nil)
	defer client.Close()

	client.SetAttr("businessExecutor", "pool-1")
	v, ok := client.GetAttr("businessExecutor")
	require.True(t, ok)
	assert.Equal(t, "pool-1", v)
}
