package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbound/overthere/message"
)

func TestCallbackManagerInvokeDeliversReply(t *testing.T) {
	cm := NewCallbackManager()
	ch := cm.Register(1, time.Now().Add(time.Minute))
	cm.Invoke(1, message.Reply{Kind: message.KindHeartbeatReply})

	reply, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, message.KindHeartbeatReply, reply.Kind)
	assert.Equal(t, 0, cm.Len())
}

func TestCallbackManagerInvokeOnUnknownIDIsNoop(t *testing.T) {
	cm := NewCallbackManager()
	assert.NotPanics(t, func() {
		cm.Invoke(999, message.Reply{})
	})
}

func TestCallbackManagerSweepClosesExpiredChannel(t *testing.T) {
	cm := NewCallbackManager()
	cm.now = func() time.Time { return time.Unix(1000, 0) }
	ch := cm.Register(1, time.Unix(900, 0))

	cm.Sweep()

	_, ok := <-ch
	assert.False(t, ok, "expired entry's channel should be closed, not sent on")
	assert.Equal(t, 0, cm.Len())
}

func TestCallbackManagerSweepLeavesUnexpiredEntries(t *testing.T) {
	cm := NewCallbackManager()
	cm.now = func() time.Time { return time.Unix(1000, 0) }
	cm.Register(1, time.Unix(1100, 0))

	cm.Sweep()

	assert.Equal(t, 1, cm.Len())
}

func TestCallbackManagerCancelRemovesEntryWithoutDelivering(t *testing.T) {
	cm := NewCallbackManager()
	cm.Register(1, time.Now().Add(time.Minute))
	cm.Cancel(1)
	assert.Equal(t, 0, cm.Len())
}
