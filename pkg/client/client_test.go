package client

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/nverba/redwire/pkg/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeServer answers every command with +PONG.
func startFakeServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			sock, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer func() { _ = c.Close() }()
				reader := resp.NewReader(c)
				writer := resp.NewWriter(c)
				for {
					if _, readErr := reader.Read(); readErr != nil {
						return
					}
					if writeErr := writer.WriteValue(resp.StatusValue("PONG")); writeErr != nil {
						return
					}
					if flushErr := writer.Flush(); flushErr != nil {
						return
					}
				}
			}(sock)
		}
	}()

	return ln.Addr().String()
}

func TestOpen_RejectsBadURL(t *testing.T) {
	_, err := Open("http://example.com")
	assert.Error(t, err)

	_, err = Open("redis://127.0.0.1/notanumber")
	assert.Error(t, err)
}

func TestClient_GetConnection(t *testing.T) {
	addr := startFakeServer(t)
	c, err := Open(fmt.Sprintf("redis://%s", addr))
	require.NoError(t, err)

	cn, err := c.WithReadTimeout(time.Second).GetConnection()
	require.NoError(t, err)
	defer func() { _ = cn.Close() }()

	assert.True(t, cn.IsOpen())
	assert.True(t, cn.Check())
	assert.Equal(t, int64(0), cn.DB())
}

func TestClient_GetConnectionTimeout(t *testing.T) {
	addr := startFakeServer(t)
	c, err := Open(fmt.Sprintf("redis://%s", addr))
	require.NoError(t, err)

	cn, err := c.GetConnectionTimeout(200 * time.Millisecond)
	require.NoError(t, err)
	_ = cn.Close()
}

func TestClient_GetPubSub(t *testing.T) {
	addr := startFakeServer(t)
	c, err := Open(fmt.Sprintf("redis://%s", addr))
	require.NoError(t, err)

	session, err := c.GetPubSub()
	require.NoError(t, err)
	assert.Empty(t, session.Topics())

	returned := session.Detach()
	_ = returned.Close()
}

func TestClient_GetPool(t *testing.T) {
	addr := startFakeServer(t)
	c, err := Open(fmt.Sprintf("redis://%s", addr))
	require.NoError(t, err)

	p, err := c.GetPool(context.Background())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	cn, err := p.Get()
	require.NoError(t, err)
	assert.True(t, cn.Check())
	p.Put(context.Background(), cn)
}

func TestFromEnv(t *testing.T) {
	addr := startFakeServer(t)
	t.Setenv("REDWIRE_URL", fmt.Sprintf("redis://%s", addr))
	t.Setenv("REDWIRE_DIAL_TIMEOUT", "1s")
	t.Setenv("REDWIRE_POOL_SIZE", "2")

	c, err := FromEnv(context.Background())
	require.NoError(t, err)

	cn, err := c.GetConnection()
	require.NoError(t, err)
	defer func() { _ = cn.Close() }()
	assert.True(t, cn.Check())
}
