package pubsub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nverba/redwire/pkg/conn"
	"github.com/nverba/redwire/pkg/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer scripts one server-side conversation over a loopback
// listener.
type fakeServer struct {
	conn   net.Conn
	reader *resp.Reader
	writer *resp.Writer
}

func dialFakeServer(t *testing.T, script func(s *fakeServer)) *conn.Connection {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		sock, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer func() { _ = sock.Close() }()
		script(&fakeServer{
			conn:   sock,
			reader: resp.NewReader(sock),
			writer: resp.NewWriter(sock),
		})
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	c, err := conn.Connect(&conn.ConnectionInfo{
		Addr: conn.TCPAddress("127.0.0.1", port),
	}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (s *fakeServer) expect(t *testing.T, name string) {
	t.Helper()
	v, err := s.reader.Read()
	require.NoError(t, err)
	seq, ok := v.AsSequence()
	require.True(t, ok)
	require.NotEmpty(t, seq)
	got, err := resp.AsString(seq[0])
	require.NoError(t, err)
	require.Equal(t, name, got)
}

func (s *fakeServer) push(t *testing.T, vs ...resp.Value) {
	t.Helper()
	for _, v := range vs {
		require.NoError(t, s.writer.WriteValue(v))
	}
	require.NoError(t, s.writer.Flush())
}

func confirmation(kind, name string, remaining int64) resp.Value {
	return resp.BulkValue(
		resp.StringValue(kind),
		resp.StringValue(name),
		resp.IntValue(remaining),
	)
}

func message(channel, payload string) resp.Value {
	return resp.BulkValue(
		resp.StringValue("message"),
		resp.StringValue(channel),
		resp.StringValue(payload),
	)
}

func pmessage(pattern, channel, payload string) resp.Value {
	return resp.BulkValue(
		resp.StringValue("pmessage"),
		resp.StringValue(pattern),
		resp.StringValue(channel),
		resp.StringValue(payload),
	)
}

func TestSession_SubscribeAndReceive(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "wavephone", 1))

		s.expect(t, "PSUBSCRIBE")
		s.push(t, confirmation("psubscribe", "w*rld", 2))

		// a stray confirmation in the stream must be skipped, not
		// delivered as a message
		s.push(t,
			confirmation("subscribe", "late", 3),
			pmessage("w*rld", "world", "hello"),
			message("wavephone", "banana"),
		)
	})

	session := New(c)
	require.NoError(t, session.Subscribe("wavephone"))
	require.NoError(t, session.PSubscribe("w*rld"))
	assert.Equal(t, []string{"wavephone"}, session.Topics())
	assert.Equal(t, []string{"w*rld"}, session.Patterns())

	msg, err := session.Receive()
	require.NoError(t, err)
	assert.True(t, msg.FromPattern())
	pattern, _ := msg.PatternName()
	assert.Equal(t, "w*rld", pattern)
	assert.Equal(t, "world", msg.ChannelName())
	assert.Equal(t, []byte("hello"), msg.PayloadBytes())

	msg, err = session.Receive()
	require.NoError(t, err)
	assert.False(t, msg.FromPattern())
	assert.Equal(t, "wavephone", msg.ChannelName())
	assert.Equal(t, []byte("banana"), msg.PayloadBytes())
}

// A subscriber holding both a pattern and a topic subscription gets the
// pattern attached only to pattern-delivered messages.
func TestSession_PatternTopicDisambiguation(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "PSUBSCRIBE")
		s.push(t, confirmation("psubscribe", "w*rld", 1))
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "hello", 2))

		s.push(t,
			pmessage("w*rld", "world", "one"),
			pmessage("w*rld", "wörld", "two"),
			message("hello", "three"),
		)
	})

	session := New(c)
	require.NoError(t, session.PSubscribe("w*rld"))
	require.NoError(t, session.Subscribe("hello"))

	for _, expected := range []struct {
		channel string
		pattern bool
	}{
		{channel: "world", pattern: true},
		{channel: "wörld", pattern: true},
		{channel: "hello", pattern: false},
	} {
		msg, err := session.Receive()
		require.NoError(t, err)
		assert.Equal(t, expected.channel, msg.ChannelName())
		assert.Equal(t, expected.pattern, msg.FromPattern())
		if expected.pattern {
			pattern, _ := msg.PatternName()
			assert.Equal(t, "w*rld", pattern)
		}
	}
}

func TestSession_UnsubscribeTracking(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "a", 1))
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "b", 2))
		s.expect(t, "UNSUBSCRIBE")
		s.push(t, confirmation("unsubscribe", "a", 1))
	})

	session := New(c)
	require.NoError(t, session.Subscribe("a"))
	require.NoError(t, session.Subscribe("b"))
	require.NoError(t, session.Unsubscribe("a"))
	assert.Equal(t, []string{"b"}, session.Topics())
	assert.Empty(t, session.Patterns())
}

// Exit drains both unsubscribe families jointly and hands back a
// connection that is immediately usable for ordinary commands.
func TestSession_Exit(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "wavephone", 1))

		s.expect(t, "UNSUBSCRIBE")
		s.expect(t, "PUNSUBSCRIBE")
		s.push(t,
			confirmation("unsubscribe", "wavephone", 0),
			confirmation("punsubscribe", "", 0),
		)

		s.expect(t, "PING")
		s.push(t, resp.StatusValue("PONG"))
	})

	session := New(c)
	require.NoError(t, session.Subscribe("wavephone"))

	returned, err := session.Exit()
	require.NoError(t, err)
	assert.Empty(t, session.Topics())

	v, err := conn.NewCmd("PING").Query(returned)
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.Status)
}

// Detach skips the drain; the next ordinary command performs it lazily.
func TestSession_Detach(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "wavephone", 1))

		s.expect(t, "UNSUBSCRIBE")
		s.expect(t, "PUNSUBSCRIBE")
		s.push(t,
			confirmation("unsubscribe", "wavephone", 0),
			confirmation("punsubscribe", "", 0),
		)

		s.expect(t, "GET")
		s.push(t, resp.StringValue("v"))
	})

	session := New(c)
	require.NoError(t, session.Subscribe("wavephone"))

	returned := session.Detach()
	v, err := conn.NewCmd("GET", "k").Query(returned)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v.Data)
}

func TestSession_Stream(t *testing.T) {
	c := dialFakeServer(t, func(s *fakeServer) {
		s.expect(t, "SUBSCRIBE")
		s.push(t, confirmation("subscribe", "wavephone", 1))
		s.push(t, message("wavephone", "banana"))
		// hang up to end the stream
		_ = s.conn.Close()
	})

	session := New(c)
	require.NoError(t, session.Subscribe("wavephone"))

	msgs, errs := session.Stream(context.Background())

	select {
	case msg := <-msgs:
		assert.Equal(t, []byte("banana"), msg.PayloadBytes())
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after hangup")
	}
}
