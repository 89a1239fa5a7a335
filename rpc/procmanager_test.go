package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcManagerExecReadStdoutDrainsAndResets(t *testing.T) {
	pm := NewProcManager()
	id, err := pm.Exec("peerA", "echo", []string{"hello"}, false, true, false, "")
	require.NoError(t, err)

	var out []byte
	require.Eventually(t, func() bool {
		b, err := pm.ReadStdout("peerA", id)
		require.NoError(t, err)
		out = append(out, b...)
		return len(out) > 0
	}, time.Second, 10*time.Millisecond)

	assert.Contains(t, string(out), "hello")

	again, err := pm.ReadStdout("peerA", id)
	require.NoError(t, err)
	assert.Empty(t, again, "draining must reset the ring buffer")
}

func TestProcManagerWriteStdinFailsWithoutPipe(t *testing.T) {
	pm := NewProcManager()
	id, err := pm.Exec("peerA", "cat", nil, false, false, false, "")
	require.NoError(t, err)

	err = pm.WriteStdin("peerA", id, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin pipe unavailable")

	_ = pm.Kill("peerA", id)
}

func TestProcManagerKillAndStatusReflectsExit(t *testing.T) {
	pm := NewProcManager()
	id, err := pm.Exec("peerA", "sleep", []string{"30"}, false, false, false, "")
	require.NoError(t, err)

	require.NoError(t, pm.Kill("peerA", id))

	require.Eventually(t, func() bool {
		alive, _, err := pm.Status("peerA", id)
		require.NoError(t, err)
		return !alive
	}, time.Second, 10*time.Millisecond)

	alive, exitCode, err := pm.Status("peerA", id)
	require.NoError(t, err)
	assert.False(t, alive)
	require.NotNil(t, exitCode)
}

func TestProcManagerCleanupDeadEvictsPastTTL(t *testing.T) {
	pm := NewProcManager()
	pm.now = func() time.Time { return time.Unix(1000, 0) }

	id, err := pm.Exec("peerA", "true", nil, false, false, false, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, exitCode, err := pm.Status("peerA", id)
		require.NoError(t, err)
		return exitCode != nil
	}, time.Second, 10*time.Millisecond)

	pm.mu.Lock()
	ps := pm.procs[id]
	pm.mu.Unlock()
	ps.mu.Lock()
	ps.deadAt = time.Unix(1000, 0)
	ps.mu.Unlock()

	pm.now = func() time.Time { return time.Unix(1000, 0).Add(time.Minute) }
	pm.CleanupDead(30 * time.Second)

	_, ok := pm.get(id)
	assert.False(t, ok, "dead process past ttl should be evicted")
}
