package rpc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	dir := t.TempDir()
	allOpts := append([]ServerOption{WithWorkingDir(dir)}, opts...)
	srv, err := NewServer("127.0.0.1:0", allOpts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dialTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	client, err := NewClient(addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegrationHeartbeatVersionCapabilities(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv.Addr())
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx))

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, overthereVersion, v)

	caps, err := c.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, serverCapabilities, caps)
}

func TestIntegrationFileRoundTrip(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv.Addr())
	ctx := context.Background()

	path := filepath.Join(srv.cfg.workingDir, "note.txt")
	id, sig, err := c.OpenFile(ctx, path, true, true, true)
	require.NoError(t, err)

	sig, err = c.WriteFile(ctx, id, sig, []byte("hello overthere"))
	require.NoError(t, err)

	data, err := c.ReadFile(ctx, id, sig)
	require.NoError(t, err)
	assert.Equal(t, "hello overthere", string(data))

	require.NoError(t, c.CloseFile(ctx, id))
}

func TestIntegrationExecEcho(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv.Addr())
	ctx := context.Background()

	id, err := c.ExecProc(ctx, "echo", []string{"integration-test"}, false, true, false, "")
	require.NoError(t, err)

	var out []byte
	require.Eventually(t, func() bool {
		b, err := c.ReadProcStdout(ctx, id)
		require.NoError(t, err)
		out = append(out, b...)
		return len(out) > 0
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(out), "integration-test")

	require.Eventually(t, func() bool {
		alive, _, err := c.ReadProcStatus(ctx, id)
		require.NoError(t, err)
		return !alive
	}, 2*time.Second, 20*time.Millisecond)
}

func TestIntegrationCustomWithoutHandlerReturnsGenericError(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv.Addr())
	ctx := context.Background()

	_, err := c.Custom(ctx, []byte("payload"))
	require.Error(t, err)

	var askErr *AskError
	require.ErrorAs(t, err, &askErr)
	assert.Equal(t, AskFailure, askErr.Kind)
}

func TestIntegrationAskTimesOutWhenHandlerOutlivesDeadline(t *testing.T) {
	srv := startTestServer(t, WithCustomHandler(func(data []byte) ([]byte, error) {
		time.Sleep(200 * time.Millisecond)
		return data, nil
	}))
	c := dialTestClient(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Custom(ctx, []byte("payload"))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}
