package rpc

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldbound/overthere/message"
)

var nextFileID uint32

func newFileID() uint32 {
	return atomic.AddUint32(&nextFileID, 1)
}

// openFile is server-global per-path state: the spec requires file_id to
// be stable across re-opens of the same path, so this is indexed by path,
// not by connection.
type openFile struct {
	id        uint32
	path      string
	handle    *os.File
	read      bool
	write     bool
	sig       uint32
	lastTouch time.Time
}

// FileManager owns every file handle the server has open on behalf of any
// connection: files by id, a path index enforcing the one-id-per-path
// invariant, and a per-connection set of touched ids for cleanup and
// RenameDir's dependent-file check.
type FileManager struct {
	mu        sync.Mutex
	byID      map[uint32]*openFile
	byPath    map[string]uint32
	connFiles map[string]map[uint32]struct{}
	now       func() time.Time
}

// NewFileManager returns an empty FileManager.
func NewFileManager() *FileManager {
	return &FileManager{
		byID:      make(map[uint32]*openFile),
		byPath:    make(map[string]uint32),
		connFiles: make(map[string]map[uint32]struct{}),
		now:       time.Now,
	}
}

// Open opens path (or reuses an existing handle, reopening internally with
// the permission union if the new request asks for more than is already
// granted), tracks it against peer, and returns its id and signature.
func (m *FileManager) Open(peer, path string, createIfMissing, write, read bool) (id, sig uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byPath[path]; ok {
		of := m.byID[existingID]
		wantRead := of.read || read
		wantWrite := of.write || write
		if wantRead != of.read || wantWrite != of.write {
			if err := m.reopenLocked(of, createIfMissing, wantWrite, wantRead); err != nil {
				return 0, 0, err
			}
		}
		of.lastTouch = m.now()
		m.touchLocked(peer, of.id)
		return of.id, of.sig, nil
	}

	flags := openFlags(createIfMissing, write, read)
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, 0, err
	}

	of := &openFile{
		id:        newFileID(),
		path:      path,
		handle:    f,
		read:      read,
		write:     write,
		lastTouch: m.now(),
	}
	m.byID[of.id] = of
	m.byPath[path] = of.id
	m.touchLocked(peer, of.id)
	return of.id, of.sig, nil
}

func (m *FileManager) reopenLocked(of *openFile, createIfMissing, write, read bool) error {
	f, err := os.OpenFile(of.path, openFlags(createIfMissing, write, read), 0o644)
	if err != nil {
		return err
	}
	of.handle.Close()
	of.handle = f
	of.read, of.write = read, write
	return nil
}

func openFlags(createIfMissing, write, read bool) int {
	var flags int
	switch {
	case write && read:
		flags = os.O_RDWR
	case write:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if createIfMissing {
		flags |= os.O_CREATE
	}
	return flags
}

func (m *FileManager) touchLocked(peer string, id uint32) {
	set, ok := m.connFiles[peer]
	if !ok {
		set = make(map[uint32]struct{})
		m.connFiles[peer] = set
	}
	set[id] = struct{}{}
}

// Close drops peer's reference to id, closing the underlying handle once no
// connection references it any longer.
func (m *FileManager) Close(peer string, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(peer, id)
}

func (m *FileManager) closeLocked(peer string, id uint32) error {
	if set, ok := m.connFiles[peer]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.connFiles, peer)
		}
	}
	if m.refCountLocked(id) > 0 {
		return nil
	}
	of, ok := m.byID[id]
	if !ok {
		return nil
	}
	of.handle.Close()
	delete(m.byID, id)
	delete(m.byPath, of.path)
	return nil
}

func (m *FileManager) refCountLocked(id uint32) int {
	n := 0
	for _, set := range m.connFiles {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}

// Write overwrites id's contents, failing with a *FileSigChangedError if
// sig does not match the file's current signature.
func (m *FileManager) Write(id, sig uint32, data []byte) (newSig uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.byID[id]
	if !ok {
		return 0, fmt.Errorf("fs: file %d not open", id)
	}
	if of.sig != sig {
		return 0, &FileSigChangedError{ID: id, NewSig: of.sig}
	}
	if err := of.handle.Truncate(0); err != nil {
		return 0, err
	}
	if _, err := of.handle.WriteAt(data, 0); err != nil {
		return 0, err
	}
	of.sig++
	of.lastTouch = m.now()
	return of.sig, nil
}

// Read returns id's full contents, failing with a *FileSigChangedError if
// sig does not match the file's current signature.
func (m *FileManager) Read(id, sig uint32) ([]byte, error) {
	m.mu.Lock()
	of, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("fs: file %d not open", id)
	}
	if of.sig != sig {
		m.mu.Unlock()
		return nil, &FileSigChangedError{ID: id, NewSig: of.sig}
	}
	of.lastTouch = m.now()
	path := of.path
	m.mu.Unlock()

	return os.ReadFile(path)
}

// Rename renames an open file, failing with a *FileSigChangedError if sig
// does not match. Returns the new signature.
func (m *FileManager) Rename(id, sig uint32, to string) (newSig uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.byID[id]
	if !ok {
		return 0, fmt.Errorf("fs: file %d not open", id)
	}
	if of.sig != sig {
		return 0, &FileSigChangedError{ID: id, NewSig: of.sig}
	}
	if err := os.Rename(of.path, to); err != nil {
		return 0, err
	}
	delete(m.byPath, of.path)
	of.path = to
	m.byPath[to] = id
	of.sig++
	of.lastTouch = m.now()
	return of.sig, nil
}

// Remove removes an open file, failing with a *FileSigChangedError if sig
// does not match.
func (m *FileManager) Remove(id, sig uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("fs: file %d not open", id)
	}
	if of.sig != sig {
		return &FileSigChangedError{ID: id, NewSig: of.sig}
	}
	if err := os.Remove(of.path); err != nil {
		return err
	}
	of.handle.Close()
	delete(m.byID, id)
	delete(m.byPath, of.path)
	for _, set := range m.connFiles {
		delete(set, id)
	}
	return nil
}

// IsOpen reports whether path currently has an open handle.
func (m *FileManager) IsOpen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPath[path]
	return ok
}

// RenameUnopened renames a file that must not currently be open.
func (m *FileManager) RenameUnopened(from, to string) error {
	m.mu.Lock()
	_, open := m.byPath[from]
	m.mu.Unlock()
	if open {
		return fmt.Errorf("fs: %s is open", from)
	}
	return os.Rename(from, to)
}

// RemoveUnopened removes a file that must not currently be open.
func (m *FileManager) RemoveUnopened(path string) error {
	m.mu.Lock()
	_, open := m.byPath[path]
	m.mu.Unlock()
	if open {
		return fmt.Errorf("fs: %s is open", path)
	}
	return os.Remove(path)
}

// RenameDirAllowed reports whether from may be renamed: true iff no
// currently open file's path falls under from.
func (m *FileManager) RenameDirAllowed(from string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := filepath.Clean(from) + string(filepath.Separator)
	for path := range m.byPath {
		if path == from || strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// CleanupUntouched closes every file whose (peer, id) has not been
// touched for longer than ttl.
func (m *FileManager) CleanupUntouched(ttl time.Duration) {
	now := m.now()
	m.mu.Lock()
	var stale []uint32
	for id, of := range m.byID {
		if now.Sub(of.lastTouch) > ttl {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()
	for _, id := range stale {
		m.mu.Lock()
		of, ok := m.byID[id]
		if ok {
			of.handle.Close()
			delete(m.byID, id)
			delete(m.byPath, of.path)
			for _, set := range m.connFiles {
				delete(set, id)
			}
		}
		m.mu.Unlock()
	}
}

// DropConnection closes every file the given peer had open and no other
// connection still references; called when a connection's record is
// dropped from the server's connections map.
func (m *FileManager) DropConnection(peer string) {
	m.mu.Lock()
	ids := make([]uint32, 0, len(m.connFiles[peer]))
	for id := range m.connFiles[peer] {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.mu.Lock()
		m.closeLocked(peer, id)
		m.mu.Unlock()
	}
}

// ListDir lists the entries directly under path.
func ListDir(path string) ([]message.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]message.DirEntry, 0, len(entries))
	for _, e := range entries {
		info := e.Type()
		out = append(out, message.DirEntry{
			Path:      filepath.Join(path, e.Name()),
			IsFile:    info.IsRegular(),
			IsDir:     info&fs.ModeDir != 0,
			IsSymlink: info&fs.ModeSymlink != 0,
		})
	}
	return out, nil
}
