package pubsub

import (
	"context"

	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/conn"
	"github.com/samber/lo"
)

var logger = common.InitLogger().WithName("pubsub")

// Session drives a connection in subscribe mode. It owns the
// connection exclusively for its lifetime: once subscribed, the server
// stops speaking request/response on the socket and only pushes
// messages and confirmations, so no ordinary command may be issued
// until Exit hands the connection back. Run one session per subscriber
// goroutine; publishing uses a separate ordinary connection.
type Session struct {
	conn     *conn.Connection
	topics   []string
	patterns []string
}

func New(c *conn.Connection) *Session {
	return &Session{conn: c}
}

// Topics returns the tracked topic subscriptions. The tracked set is a
// lower bound on server-side truth: a topic is only recorded after its
// subscribe command succeeded.
func (s *Session) Topics() []string {
	return append([]string(nil), s.topics...)
}

func (s *Session) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// Subscribe starts receiving messages published to topic.
func (s *Session) Subscribe(topic string) error {
	if _, err := conn.NewCmd("SUBSCRIBE", topic).Query(s.conn); err != nil {
		return err
	}
	s.topics = append(s.topics, topic)
	return nil
}

// PSubscribe starts receiving messages on topics matching pattern.
func (s *Session) PSubscribe(pattern string) error {
	if _, err := conn.NewCmd("PSUBSCRIBE", pattern).Query(s.conn); err != nil {
		return err
	}
	s.patterns = append(s.patterns, pattern)
	return nil
}

// Unsubscribe stops receiving messages on topic.
func (s *Session) Unsubscribe(topic string) error {
	if _, err := conn.NewCmd("UNSUBSCRIBE", topic).Query(s.conn); err != nil {
		return err
	}
	s.topics = lo.Without(s.topics, topic)
	return nil
}

// PUnsubscribe stops receiving messages on topics matching pattern.
func (s *Session) PUnsubscribe(pattern string) error {
	if _, err := conn.NewCmd("PUNSUBSCRIBE", pattern).Query(s.conn); err != nil {
		return err
	}
	s.patterns = lo.Without(s.patterns, pattern)
	return nil
}

// Receive blocks until the next genuine message arrives. Confirmation
// frames are logged and consumed without being returned; a frame that
// is neither a confirmation nor a message is a type error.
func (s *Session) Receive() (*Msg, error) {
	for {
		v, err := s.conn.Receive()
		if err != nil {
			return nil, err
		}
		if confirmation, ok := checkConfirmation(v); ok {
			logger.V(1).Info("Received subscription confirmation",
				"kind", confirmation.Kind, "name", confirmation.Name)
			continue
		}
		msg, ok := msgFromValue(v)
		if !ok {
			return nil, common.NewError(common.TypeError, "Failed to parse message")
		}
		return msg, nil
	}
}

// Stream runs the receive loop in a goroutine and delivers messages on
// the returned channel until ctx is done or the connection fails. The
// channel is closed on exit; the terminal error, if any, is delivered
// on the error channel.
func (s *Session) Stream(ctx context.Context) (<-chan *Msg, <-chan error) {
	out := make(chan *Msg)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			msg, err := s.Receive()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}

// Exit forces the server out of subscribe mode, draining both
// unsubscribe families jointly, and returns the connection in a
// command-ready state. The session must not be used afterwards.
func (s *Session) Exit() (*conn.Connection, error) {
	if err := s.conn.ExitPubSub(); err != nil {
		return nil, err
	}
	s.topics = nil
	s.patterns = nil
	return s.conn, nil
}

// Detach returns the connection without draining the subscribe state.
// The connection is flagged mid-protocol: its next ordinary command
// drains the subscriptions first.
func (s *Session) Detach() *conn.Connection {
	s.conn.SetPubSubState(true)
	return s.conn
}
