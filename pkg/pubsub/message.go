package pubsub

import (
	"github.com/nverba/redwire/pkg/resp"
)

// Msg is one delivered pub/sub message. Pattern is only set for
// messages that arrived through a pattern subscription.
type Msg struct {
	payload resp.Value
	channel resp.Value
	pattern *resp.Value
}

// msgFromValue converts a reply into a Msg. Only array replies of shape
// ["message", channel, payload] or ["pmessage", pattern, channel,
// payload] qualify; anything else returns false.
func msgFromValue(v resp.Value) (*Msg, bool) {
	seq, ok := v.AsSequence()
	if !ok || len(seq) < 3 {
		return nil, false
	}
	kind, err := resp.AsString(seq[0])
	if err != nil {
		return nil, false
	}
	switch kind {
	case "message":
		return &Msg{channel: seq[1], payload: seq[2]}, true
	case "pmessage":
		if len(seq) < 4 {
			return nil, false
		}
		pattern := seq[1]
		return &Msg{pattern: &pattern, channel: seq[2], payload: seq[3]}, true
	default:
		return nil, false
	}
}

// Channel returns the channel the message came on.
func (m *Msg) Channel() resp.Value {
	return m.channel
}

// ChannelName returns the channel as a string, or "?" if the channel
// holds non-UTF-8 bytes (which really should not happen).
func (m *Msg) ChannelName() string {
	s, err := resp.AsString(m.channel)
	if err != nil {
		return "?"
	}
	return s
}

// Payload returns the raw payload value.
func (m *Msg) Payload() resp.Value {
	return m.payload
}

// PayloadBytes returns the payload bytes, or nil for non-data payloads.
func (m *Msg) PayloadBytes() []byte {
	if m.payload.Kind == resp.Data {
		return m.payload.Data
	}
	return nil
}

// FromPattern reports whether the message arrived through a pattern
// subscription.
func (m *Msg) FromPattern() bool {
	return m.pattern != nil
}

// Pattern returns the matching pattern, or a Nil value for plain topic
// messages.
func (m *Msg) Pattern() resp.Value {
	if m.pattern == nil {
		return resp.NilValue
	}
	return *m.pattern
}

// PatternName returns the pattern as a string and whether one was set.
func (m *Msg) PatternName() (string, bool) {
	if m.pattern == nil {
		return "", false
	}
	s, err := resp.AsString(*m.pattern)
	if err != nil {
		return "", false
	}
	return s, true
}

// ConfirmationKind discriminates subscription confirmation frames.
type ConfirmationKind int

const (
	// ConfirmTopic acknowledges a SUBSCRIBE.
	ConfirmTopic ConfirmationKind = iota
	// ConfirmPattern acknowledges a PSUBSCRIBE.
	ConfirmPattern
	// ConfirmUnsub acknowledges an UNSUBSCRIBE.
	ConfirmUnsub
	// ConfirmPunsub acknowledges a PUNSUBSCRIBE.
	ConfirmPunsub
)

// Confirmation is a subscription state change acknowledged by the
// server. Confirmations are consumed by the session and never surface
// as messages.
type Confirmation struct {
	Kind ConfirmationKind
	Name string
}

func checkConfirmation(v resp.Value) (*Confirmation, bool) {
	seq, ok := v.AsSequence()
	if !ok || len(seq) < 2 {
		return nil, false
	}
	kind, err := resp.AsString(seq[0])
	if err != nil {
		return nil, false
	}
	name, err := resp.AsString(seq[1])
	if err != nil {
		return nil, false
	}
	switch kind {
	case "subscribe":
		return &Confirmation{Kind: ConfirmTopic, Name: name}, true
	case "psubscribe":
		return &Confirmation{Kind: ConfirmPattern, Name: name}, true
	case "unsubscribe":
		return &Confirmation{Kind: ConfirmUnsub, Name: name}, true
	case "punsubscribe":
		return &Confirmation{Kind: ConfirmPunsub, Name: name}, true
	default:
		return nil, false
	}
}
