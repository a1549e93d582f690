package pubsub

import (
	"testing"

	"github.com/nverba/redwire/pkg/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgFromValue(t *testing.T) {
	msg, ok := msgFromValue(resp.BulkValue(
		resp.StringValue("message"),
		resp.StringValue("wavephone"),
		resp.StringValue("banana"),
	))
	require.True(t, ok)
	assert.Equal(t, "wavephone", msg.ChannelName())
	assert.Equal(t, []byte("banana"), msg.PayloadBytes())
	assert.False(t, msg.FromPattern())
	assert.Equal(t, resp.Nil, msg.Pattern().Kind)

	msg, ok = msgFromValue(resp.BulkValue(
		resp.StringValue("pmessage"),
		resp.StringValue("w*rld"),
		resp.StringValue("world"),
		resp.StringValue("hello"),
	))
	require.True(t, ok)
	assert.True(t, msg.FromPattern())
	pattern, set := msg.PatternName()
	assert.True(t, set)
	assert.Equal(t, "w*rld", pattern)
	assert.Equal(t, "world", msg.ChannelName())
	assert.Equal(t, []byte("hello"), msg.PayloadBytes())
}

func TestMsgFromValue_Rejects(t *testing.T) {
	cases := []resp.Value{
		resp.NilValue,
		resp.IntValue(1),
		resp.BulkValue(resp.StringValue("message"), resp.StringValue("only-two")),
		resp.BulkValue(resp.StringValue("pmessage"), resp.StringValue("p"), resp.StringValue("ch")),
		resp.BulkValue(resp.StringValue("subscribe"), resp.StringValue("ch"), resp.IntValue(1)),
	}
	for _, v := range cases {
		_, ok := msgFromValue(v)
		assert.False(t, ok, "value %s", v)
	}
}

func TestCheckConfirmation(t *testing.T) {
	tests := []struct {
		frame string
		kind  ConfirmationKind
	}{
		{frame: "subscribe", kind: ConfirmTopic},
		{frame: "psubscribe", kind: ConfirmPattern},
		{frame: "unsubscribe", kind: ConfirmUnsub},
		{frame: "punsubscribe", kind: ConfirmPunsub},
	}
	for _, tt := range tests {
		c, ok := checkConfirmation(resp.BulkValue(
			resp.StringValue(tt.frame),
			resp.StringValue("name"),
			resp.IntValue(1),
		))
		require.True(t, ok, "frame %q", tt.frame)
		assert.Equal(t, tt.kind, c.Kind)
		assert.Equal(t, "name", c.Name)
	}

	_, ok := checkConfirmation(resp.BulkValue(
		resp.StringValue("message"),
		resp.StringValue("ch"),
		resp.StringValue("payload"),
	))
	assert.False(t, ok, "a delivered message is not a confirmation")
}
