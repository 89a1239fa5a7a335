// Package transport provides the byte-level framing that carries wire
// packets over UDP datagrams and TCP byte streams. It never inspects
// packet contents; it only delimits whole packets on the wire so the
// caller can hand each one to wire.InputProcessor unchanged.
package transport

import "time"

const (
	// MaxPacketBytesIPv4 is the conservative UDP packet budget for IPv4:
	// MTU minus IP/UDP headers. Authoritative on UDP since the transport
	// never fragments at this layer.
	MaxPacketBytesIPv4 = 508

	// MaxPacketBytesIPv6 is the conservative UDP packet budget for IPv6.
	MaxPacketBytesIPv6 = 1212

	// MaxPacketBytesTCP is the advisory packet budget for TCP (Ethernet
	// MTU); TCP itself never enforces it, since the stream is
	// length-prefixed rather than datagram-bounded.
	MaxPacketBytesTCP = 1500

	// DefaultDialTimeout bounds how long a client waits to establish a
	// TCP connection before giving up.
	DefaultDialTimeout = 10 * time.Second
)
