package rpc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileManagerOpenIsIdempotentPerPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	id1, sig1, err := fm.Open("peerA", path, false, false, true)
	require.NoError(t, err)

	id2, sig2, err := fm.Open("peerB", path, false, false, true)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "the same path must resolve to the same file id")
	assert.Equal(t, sig1, sig2)
}

func TestFileManagerOpenUnionsPermissionsOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	id, sig, err := fm.Open("peerA", path, false, false, true)
	require.NoError(t, err)

	id2, sig2, err := fm.Open("peerB", path, false, true, false)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, sig, sig2)

	newSig, err := fm.Write(id, sig, []byte("updated"))
	require.NoError(t, err, "write should succeed now that the union grants write access")
	assert.Equal(t, sig+1, newSig)
}

func TestFileManagerWriteRejectsStaleSig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	id, sig, err := fm.Open("peerA", path, false, true, false)
	require.NoError(t, err)

	_, err = fm.Write(id, sig, []byte("v1"))
	require.NoError(t, err)

	_, err = fm.Write(id, sig, []byte("v2 using stale sig"))
	require.Error(t, err)
	sc, ok := err.(*FileSigChangedError)
	require.True(t, ok)
	assert.Equal(t, sig+1, sc.NewSig)
}

func TestFileManagerReadReturnsCurrentContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	fm := NewFileManager()
	id, sig, err := fm.Open("peerA", path, false, true, true)
	require.NoError(t, err)

	newSig, err := fm.Write(id, sig, []byte("replaced"))
	require.NoError(t, err)

	data, err := fm.Read(id, newSig)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))
}

func TestFileManagerCloseSharedAcrossConnectionsKeepsHandleOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	id, _, err := fm.Open("peerA", path, false, false, true)
	require.NoError(t, err)
	_, _, err = fm.Open("peerB", path, false, false, true)
	require.NoError(t, err)

	require.NoError(t, fm.Close("peerA", id))
	assert.True(t, fm.IsOpen(path), "peerB still holds a reference")

	require.NoError(t, fm.Close("peerB", id))
	assert.False(t, fm.IsOpen(path))
}

func TestFileManagerRenameDirAllowedRejectsOpenDescendant(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := filepath.Join(sub, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	_, _, err := fm.Open("peerA", path, false, false, true)
	require.NoError(t, err)

	assert.False(t, fm.RenameDirAllowed(sub))
}

func TestFileManagerRenameDirAllowedWithNoOpenDescendants(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	fm := NewFileManager()
	assert.True(t, fm.RenameDirAllowed(sub))
}

func TestFileManagerRemoveUnopenedRejectsOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	fm := NewFileManager()
	_, _, err := fm.Open("peerA", path, false, false, true)
	require.NoError(t, err)

	err = fm.RemoveUnopened(path)
	assert.Error(t, err)
}
