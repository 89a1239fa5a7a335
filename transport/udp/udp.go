// Package udp carries wire packets over UDP datagrams. Since UDP is
// already datagram-bounded, one send call is exactly one packet and one
// receive call returns exactly one packet's bytes: no framing is needed,
// unlike TCP. A datagram that fails to decode at a higher layer is simply
// dropped without affecting other traffic.
package udp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// MaxPacketBytes returns the conservative MTU-derived packet budget for
// addr: 508 bytes for IPv4, 1212 for IPv6.
func MaxPacketBytes(addr net.Addr) int {
	udpAddr, ok := addr.(*net.UDPAddr)
	if ok && udpAddr.IP.To4() == nil && udpAddr.IP.To16() != nil {
		return 1212
	}
	return 508
}

// Conn is a connected UDP socket talking to exactly one peer, used by the
// client (which only ever has one server) and by Forward's inner client
// stack.
type Conn struct {
	conn *net.UDPConn
}

// Dial connects a UDP socket to address.
func Dial(address string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", address, err)
	}
	return &Conn{conn: conn}, nil
}

// Send writes one datagram, respecting ctx's deadline.
func (c *Conn) Send(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(b)
	if err != nil {
		return fmt.Errorf("udp: write datagram: %w", err)
	}
	return nil
}

// Receive reads exactly one datagram, respecting ctx's deadline.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 65507)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("udp: read datagram: %w", err)
	}
	return buf[:n], nil
}

// MaxPacketBytes reports the MTU-derived budget for this connection's
// remote address.
func (c *Conn) MaxPacketBytes() int { return MaxPacketBytes(c.conn.RemoteAddr()) }

// LocalAddr returns the socket's local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the socket's connected peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the socket.
func (c *Conn) Close() error { return c.conn.Close() }

// Socket is an unconnected, accept-style UDP listener used by the server:
// a single socket multiplexes datagrams from many peers, demultiplexed by
// source address.
type Socket struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket bound to address.
func Listen(address string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: listen %s: %w", address, err)
	}
	return &Socket{conn: conn}, nil
}

// ReceiveFrom reads one datagram and the address it arrived from.
func (s *Socket) ReceiveFrom(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 65507)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("udp: read datagram: %w", err)
	}
	return buf[:n], addr, nil
}

// SendTo writes one datagram to addr.
func (s *Socket) SendTo(ctx context.Context, b []byte, addr *net.UDPAddr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	_, err := s.conn.WriteToUDP(b, addr)
	if err != nil {
		return fmt.Errorf("udp: write datagram to %s: %w", addr, err)
	}
	return nil
}

// LocalAddr returns the socket's bound address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close closes the socket.
func (s *Socket) Close() error { return s.conn.Close() }
