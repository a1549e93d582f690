package conn

import (
	"errors"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/metrics"
	"github.com/nverba/redwire/pkg/resp"
)

// ConnectionLike is the stateless request/response contract. Actual
// connections expose more (pub/sub hand-off, stripping), but everything
// that only issues commands should accept this interface.
type ConnectionLike interface {
	// SendCommand writes one already-encoded command and reads its single reply.
	SendCommand(cmd []byte) (resp.Value, error)

	// SendPipeline writes a batch of already-encoded commands and reads
	// offset+count replies, returning those in [offset, offset+count).
	SendPipeline(cmd []byte, offset, count int) ([]resp.Value, error)

	// DB returns the database index this connection is bound to.
	DB() int64

	// Check issues a liveness probe and reports success, swallowing the error.
	Check() bool

	// IsOpen reports whether the transport has seen a dropped connection.
	IsOpen() bool
}

// Connection binds a transport and a frame reader to a logical database
// index. Single-owner: exactly one goroutine may issue commands at a
// time; callers needing sharing must serialize externally.
type Connection struct {
	Id     string
	tr     *Transport
	reader *resp.Reader
	db     int64

	// pubsub records that the connection was handed back by a pub/sub
	// session without draining the subscribe state. The next ordinary
	// command drains it first.
	pubsub bool
}

// deadlineReader applies the transport's read timeout before every
// socket read and tracks liveness on read failures.
type deadlineReader struct {
	tr *Transport
}

func (r deadlineReader) Read(p []byte) (int, error) {
	r.tr.beforeRead()
	n, err := r.tr.conn.Read(p)
	if err != nil {
		r.tr.observeError(err)
	}
	return n, err
}

func newConnection(tr *Transport, db int64, pubsub bool) *Connection {
	return &Connection{
		Id:     shortuuid.New(),
		tr:     tr,
		reader: resp.NewReader(deadlineReader{tr: tr}),
		db:     db,
		pubsub: pubsub,
	}
}

// Connect dials the address in info and performs session bootstrap:
// AUTH when a password was supplied, then SELECT for a non-zero
// database index. A zero timeout blocks indefinitely on the dial.
func Connect(info *ConnectionInfo, timeout time.Duration) (*Connection, error) {
	tr, err := Dial(info.Addr, timeout)
	if err != nil {
		return nil, err
	}
	c := newConnection(tr, info.DB, false)

	if info.Password != "" {
		if err := authenticate(c, info); err != nil {
			_ = tr.Close()
			return nil, err
		}
	}
	if info.DB != 0 {
		v, err := NewCmd("SELECT", info.DB).Query(c)
		if err != nil || v.Kind != resp.Okay {
			_ = tr.Close()
			return nil, common.NewError(common.ResponseError,
				"Redis server refused to switch database")
		}
	}

	metrics.Get().IncrementActiveConnections()
	return c, nil
}

// authenticate first tries the `AUTH [user] pass` form and falls back to
// the legacy `AUTH pass` form only when the server rejects the modern
// one specifically for wrong arity. Any other failure is final.
func authenticate(c *Connection, info *ConnectionInfo) error {
	cmd := NewCmd("AUTH")
	if info.Username != "" {
		cmd.Arg(info.Username)
	}
	cmd.Arg(info.Password)

	v, err := cmd.Query(c)
	if err == nil {
		if v.Kind == resp.Okay {
			return nil
		}
		return common.NewError(common.ResponseError,
			"Redis server refused to authenticate, reply was not OK")
	}

	var re *common.RedisError
	if errors.As(err, &re) &&
		strings.Contains(re.Detail(), "wrong number of arguments for 'auth' command") {
		v, legacyErr := NewCmd("AUTH", info.Password).Query(c)
		if legacyErr == nil && v.Kind == resp.Okay {
			return nil
		}
	}
	return common.NewError(common.AuthenticationFailed, "Password authentication failed")
}

// SendPacked writes an encoded command without reading a reply. Needed
// for commands that yield multiple asynchronous frames; use with care
// because it changes the state of the connection.
func (c *Connection) SendPacked(cmd []byte) error {
	return c.tr.Write(cmd)
}

// Receive fetches a single reply frame. Useful combined with
// SendPacked, and the read primitive behind pub/sub delivery.
func (c *Connection) Receive() (resp.Value, error) {
	v, err := c.reader.Read()
	if err != nil {
		c.tr.observeError(err)
		return resp.Value{}, err
	}
	return v, nil
}

func (c *Connection) SendCommand(cmd []byte) (resp.Value, error) {
	if c.pubsub {
		if err := c.ExitPubSub(); err != nil {
			return resp.Value{}, err
		}
	}
	if err := c.tr.Write(cmd); err != nil {
		return resp.Value{}, err
	}
	return c.Receive()
}

func (c *Connection) SendPipeline(cmd []byte, offset, count int) ([]resp.Value, error) {
	if c.pubsub {
		if err := c.ExitPubSub(); err != nil {
			return nil, err
		}
	}
	if err := c.tr.Write(cmd); err != nil {
		return nil, err
	}
	// A failing reply inside a batch must not abort consumption of the
	// remaining replies, otherwise the stream desynchronizes. The first
	// error wins, but every expected reply is still read.
	rv := make([]resp.Value, 0, count)
	var firstErr error
	for idx := 0; idx < offset+count; idx++ {
		v, err := c.Receive()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			var re *common.RedisError
			if errors.As(err, &re) && re.IsIOError() {
				// Nothing more will arrive on a broken stream.
				return nil, firstErr
			}
			continue
		}
		if idx >= offset {
			rv = append(rv, v)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return rv, nil
}

func (c *Connection) DB() int64 {
	return c.db
}

func (c *Connection) IsOpen() bool {
	return c.tr.IsOpen()
}

// Check sends PING and reports whether a string reply came back.
func (c *Connection) Check() bool {
	v, err := NewCmd("PING").Query(c)
	if err != nil {
		return false
	}
	_, convErr := resp.AsString(v)
	return convErr == nil
}

func (c *Connection) SetReadTimeout(d time.Duration) error  { return c.tr.SetReadTimeout(d) }
func (c *Connection) SetWriteTimeout(d time.Duration) error { return c.tr.SetWriteTimeout(d) }
func (c *Connection) ClearReadTimeout()                     { c.tr.ClearReadTimeout() }
func (c *Connection) ClearWriteTimeout()                    { c.tr.ClearWriteTimeout() }

// SetPubSubState marks whether the connection was left mid-protocol by
// a pub/sub session. Raised by the session when it detaches without
// draining; cleared once the subscribe state is drained.
func (c *Connection) SetPubSubState(active bool) {
	c.pubsub = active
}

// ExitPubSub forces the server out of subscribe mode. Both unsubscribe
// families are issued back-to-back without waiting in between: the
// remaining-subscription count in the confirmations spans topics and
// patterns jointly, so they have to be drained together.
func (c *Connection) ExitPubSub() error {
	if err := c.tr.Write(NewCmd("UNSUBSCRIBE").Pack()); err != nil {
		return err
	}
	if err := c.tr.Write(NewCmd("PUNSUBSCRIBE").Pack()); err != nil {
		return err
	}

	receivedUnsub := false
	receivedPunsub := false
	for {
		v, err := c.Receive()
		if err != nil {
			return err
		}
		seq, ok := v.AsSequence()
		if !ok || len(seq) != 3 {
			return common.NewError(common.TypeError,
				"unexpected reply while draining subscriptions")
		}
		name, err := resp.AsString(seq[0])
		if err != nil {
			return err
		}
		remaining, err := resp.AsInt64(seq[2])
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(name, "p"):
			receivedPunsub = true
		case strings.HasPrefix(name, "u"):
			receivedUnsub = true
		}
		if receivedUnsub && receivedPunsub && remaining == 0 {
			break
		}
	}
	c.pubsub = false
	return nil
}

// Stripped is a connection descriptor with the live parser state
// removed, safe to relocate across goroutine or process boundaries.
type Stripped struct {
	tr     *Transport
	db     int64
	pubsub bool
}

// Strip snapshots the connection without its parser state. The database
// index and pub/sub flag are preserved exactly.
func (c *Connection) Strip() Stripped {
	return Stripped{tr: c.tr.Clone(), db: c.db, pubsub: c.pubsub}
}

// Resume rebuilds a usable connection from a snapshot with fresh parser
// state.
func (s Stripped) Resume() *Connection {
	return newConnection(s.tr, s.db, s.pubsub)
}

func (c *Connection) Close() error {
	metrics.Get().DecrementActiveConnections()
	return c.tr.Close()
}
