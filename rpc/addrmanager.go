package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/coldbound/overthere/internal/logx"
	"github.com/coldbound/overthere/message"
	"github.com/coldbound/overthere/wire"
)

// udpSocket is the subset of *udp.Socket the AddrEventManager needs; kept
// as an interface so tests can substitute a fake without opening a real
// socket.
type udpSocket interface {
	ReceiveFrom(ctx context.Context) ([]byte, *net.UDPAddr, error)
	SendTo(ctx context.Context, b []byte, addr *net.UDPAddr) error
}

type addrPayload struct {
	addr *net.UDPAddr
	b    []byte
}

// AddrEventManager multiplexes one UDP socket across many peers: a single
// inbound goroutine demultiplexes datagrams by source address into a
// per-peer InputProcessor (so each peer's fragment reassembly is
// independent), and a single outbound goroutine drains a shared mailbox
// and writes through one shared OutputProcessor. This mirrors the
// accept-style AddrEventManager the spec calls for on UDP, where there is
// no per-peer connection object to hang per-connection goroutines off of.
type AddrEventManager struct {
	socket    udpSocket
	out       *wire.OutputProcessor
	newInput  func() *wire.InputProcessor
	logger    logx.Logger

	mu    sync.Mutex
	peers map[string]*wire.InputProcessor
	addrs map[string]*net.UDPAddr

	mailbox chan addrPayload
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewAddrEventManager builds an AddrEventManager bound to socket. newInput
// is called once per newly seen peer address to build that peer's
// InputProcessor (so each gets its own assembler and TTL clock); out is
// shared across all peers since the disassembler's overhead cache and the
// signer/encrypter are safe for concurrent use.
func NewAddrEventManager(socket udpSocket, out *wire.OutputProcessor, newInput func() *wire.InputProcessor, mailboxCapacity int, logger logx.Logger) *AddrEventManager {
	if logger == nil {
		logger = logx.Noop{}
	}
	return &AddrEventManager{
		socket:  socket,
		out:     out,
		newInput: newInput,
		logger:  logger,
		peers:   make(map[string]*wire.InputProcessor),
		addrs:   make(map[string]*net.UDPAddr),
		mailbox: make(chan addrPayload, mailboxCapacity),
	}
}

// Start launches the inbound and outbound goroutines.
func (m *AddrEventManager) Start(ctx context.Context, inboundCh chan<- Inbound) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.inboundLoop(ctx, inboundCh)
	go m.outboundLoop(ctx)
}

// Stop cancels both goroutines and waits for them to exit.
func (m *AddrEventManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// SendTo enqueues payload to be encrypted, fragmented, signed, and written
// to the peer identified by its address string (as seen in Inbound.Peer).
func (m *AddrEventManager) SendTo(ctx context.Context, peer string, payload []byte) error {
	m.mu.Lock()
	addr, ok := m.addrs[peer]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("rpc: unknown udp peer %q", peer)
	}
	select {
	case m.mailbox <- addrPayload{addr: addr, b: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *AddrEventManager) inputFor(addr *net.UDPAddr) *wire.InputProcessor {
	key := addr.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.peers[key]
	if !ok {
		in = m.newInput()
		m.peers[key] = in
		m.addrs[key] = addr
	}
	return in
}

func (m *AddrEventManager) inboundLoop(ctx context.Context, inboundCh chan<- Inbound) {
	defer m.wg.Done()
	for {
		b, addr, err := m.socket.ReceiveFrom(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("rpc: udp: dropping unreadable datagram: %v", err)
			continue
		}

		in := m.inputFor(addr)
		plaintext, complete, err := in.Process(b)
		if err != nil {
			m.logger.Warn("rpc: udp: %s: dropping malformed packet: %v", addr, err)
			continue
		}
		if !complete {
			continue
		}

		msg, err := message.Decode(plaintext)
		if err != nil {
			m.logger.Warn("rpc: udp: %s: dropping undecodable message: %v", addr, err)
			continue
		}

		peer := addr.String()
		inbound := Inbound{
			Msg:  msg,
			Peer: peer,
			Reply: func(ctx context.Context, b []byte) error {
				return m.SendTo(ctx, peer, b)
			},
		}
		select {
		case inboundCh <- inbound:
		case <-ctx.Done():
			return
		}
	}
}

func (m *AddrEventManager) outboundLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case item := <-m.mailbox:
			packets, err := m.out.Process(item.b)
			if err != nil {
				m.logger.Warn("rpc: udp: encode outbound message to %s: %v", item.addr, err)
				continue
			}
			for _, p := range packets {
				if err := m.socket.SendTo(ctx, p, item.addr); err != nil {
					m.logger.Warn("rpc: udp: write to %s: %v", item.addr, err)
					break
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
