package udp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSocketSendToReceiveFrom(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte("one datagram, one packet")
	require.NoError(t, client.Send(ctx, payload))

	got, from, err := server.ReceiveFrom(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, server.SendTo(ctx, []byte("reply"), from))
	reply, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("reply"), reply)
}

func TestMaxPacketBytesIPv4(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, 508, client.MaxPacketBytes())
}
