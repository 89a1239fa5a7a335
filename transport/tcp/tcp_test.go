package tcp

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnSendReceiveRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		serverConnCh <- c
	}()

	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConnCh
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte("hello over tcp")
	require.NoError(t, client.Send(ctx, payload))

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestConnReceiveBuffersPartialReads(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		serverConnCh <- c
	}()

	rawClient, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer rawClient.Close()

	server := <-serverConnCh
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frame := []byte("straddles two writes cleanly")
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Split the length prefix and the payload across separate writes so
		// Receive has to buffer partial reads.
		chunks := [][]byte{lenBuf[:2], append(lenBuf[2:], frame[:5]...), frame[5:]}
		for _, chunk := range chunks {
			_, err := rawClient.Write(chunk)
			require.NoError(t, err)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, frame, got)
	<-done
}

func TestConnReceiveRespectsContextDeadline(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		serverConnCh <- c
	}()

	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConnCh
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Receive(ctx)
	require.Error(t, err)
}
