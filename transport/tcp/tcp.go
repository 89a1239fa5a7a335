// Package tcp frames wire packets over a TCP byte stream with a
// length-prefixed envelope: a 4-byte big-endian size followed by exactly
// that many payload bytes. This replaces both the original implementation's
// ad-hoc framing attempts and the teacher's newline-delimited framing,
// since binary CBOR payloads are not newline-safe.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coldbound/overthere/transport"
)

// lengthPrefixSize is the width of the frame-length header.
const lengthPrefixSize = 4

// MaxFrameBytes bounds how large a single frame may declare itself,
// guarding against a corrupt or adversarial length prefix demanding an
// unbounded allocation.
const MaxFrameBytes = 64 << 20

// Conn frames packet bytes over a net.Conn. Send and Receive touch
// disjoint state (a write-side buffered writer, a read-side buffered
// reader) so one goroutine may call Receive while another calls Send,
// matching the inbound/outbound split-half requirement. Send serializes
// concurrent callers with a mutex; Receive is not safe to call concurrently
// with itself.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
	w    *bufio.Writer
}

// NewConn wraps an established net.Conn for length-prefixed framing.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
}

// Dial connects to address and returns a framed Conn.
func Dial(address string) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", address, transport.DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", address, err)
	}
	return NewConn(conn), nil
}

// Send writes one length-prefixed frame, respecting ctx's deadline.
func (c *Conn) Send(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("tcp: write frame length: %w", err)
	}
	if _, err := c.w.Write(b); err != nil {
		return fmt.Errorf("tcp: write frame payload: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("tcp: flush frame: %w", err)
	}
	return nil
}

// Receive blocks until one complete frame has been read, buffering across
// partial reads as needed. It never returns a frame that straddles two
// writes and never truncates one across calls.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("tcp: frame of %d bytes exceeds %d byte limit", n, MaxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("tcp: read frame payload: %w", err)
	}
	return buf, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// LocalAddr returns the connection's local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Listener accepts TCP connections and wraps each as a framed Conn.
type Listener struct {
	ln net.Listener
}

// Listen starts a TCP listener on address.
func Listen(address string) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for and returns the next inbound connection as a framed Conn.
func (l *Listener) Accept() (*Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
