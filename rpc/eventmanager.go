package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/coldbound/overthere/internal/logx"
	"github.com/coldbound/overthere/message"
	"github.com/coldbound/overthere/wire"
)

// FrameConn is the minimum a transport binding must offer the event
// manager: one Send/Receive call moves exactly one packet's bytes,
// regardless of whether the underlying medium is a UDP socket or a
// length-prefixed TCP stream.
type FrameConn interface {
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Inbound is one fully reassembled message handed to the dispatcher (or
// the client's reply path), along with enough context to answer it.
type Inbound struct {
	Msg  message.Msg
	Peer string
	// Reply sends b back to whichever peer produced this Inbound.
	Reply func(ctx context.Context, b []byte) error
}

// EventManager owns one connection's inbound and outbound long-lived
// goroutines: an inbound loop that reads framed bytes, verifies and
// reassembles them into plaintext, parses a Msg, and enqueues an Inbound
// on a shared dispatch channel; and an outbound loop that drains a bounded
// mailbox and writes each payload through the OutputProcessor to the
// transport. The two goroutines share no mutable state, so a slow or
// stalled reader never blocks a write and vice versa.
type EventManager struct {
	conn   FrameConn
	out    *wire.OutputProcessor
	in     *wire.InputProcessor
	peer   string
	logger logx.Logger

	mailbox chan []byte

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewEventManager builds an EventManager bound to one connection. peer
// identifies the remote end for Inbound.Peer and log messages.
// mailboxCapacity sets the outbound channel's depth (internal_buffer_size).
func NewEventManager(conn FrameConn, out *wire.OutputProcessor, in *wire.InputProcessor, peer string, mailboxCapacity int, logger logx.Logger) *EventManager {
	if logger == nil {
		logger = logx.Noop{}
	}
	return &EventManager{
		conn:    conn,
		out:     out,
		in:      in,
		peer:    peer,
		logger:  logger,
		mailbox: make(chan []byte, mailboxCapacity),
	}
}

// Start launches the inbound and outbound goroutines. inboundCh receives
// every fully reassembled message this connection produces; it must not be
// closed while this EventManager is running.
func (em *EventManager) Start(ctx context.Context, inboundCh chan<- Inbound) {
	ctx, cancel := context.WithCancel(ctx)
	em.cancel = cancel

	em.wg.Add(2)
	go em.inboundLoop(ctx, inboundCh)
	go em.outboundLoop(ctx)
}

// Stop cancels both goroutines and waits for them to exit.
func (em *EventManager) Stop() {
	if em.cancel != nil {
		em.cancel()
	}
	em.wg.Wait()
}

// Send enqueues a plaintext application payload for the outbound loop to
// encrypt, fragment, sign, and write. A full mailbox blocks the caller
// rather than dropping the message, providing backpressure.
func (em *EventManager) Send(ctx context.Context, payload []byte) error {
	select {
	case em.mailbox <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (em *EventManager) inboundLoop(ctx context.Context, inboundCh chan<- Inbound) {
	defer em.wg.Done()
	for {
		b, err := em.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			em.logger.Warn("rpc: %s: inbound read failed, closing connection: %v", em.peer, err)
			return
		}

		plaintext, complete, err := em.in.Process(b)
		if err != nil {
			em.logger.Warn("rpc: %s: dropping malformed packet: %v", em.peer, err)
			continue
		}
		if !complete {
			continue
		}

		msg, err := message.Decode(plaintext)
		if err != nil {
			em.logger.Warn("rpc: %s: dropping undecodable message: %v", em.peer, err)
			continue
		}

		inbound := Inbound{Msg: msg, Peer: em.peer, Reply: em.Send}
		select {
		case inboundCh <- inbound:
		case <-ctx.Done():
			return
		}
	}
}

func (em *EventManager) outboundLoop(ctx context.Context) {
	defer em.wg.Done()
	for {
		select {
		case payload := <-em.mailbox:
			if err := em.writeOne(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				em.logger.Warn("rpc: %s: outbound write failed, closing connection: %v", em.peer, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (em *EventManager) writeOne(ctx context.Context, payload []byte) error {
	packets, err := em.out.Process(payload)
	if err != nil {
		return fmt.Errorf("rpc: encode outbound message: %w", err)
	}
	for _, p := range packets {
		if err := em.conn.Send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
