package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coldbound/overthere/auth"
	"github.com/coldbound/overthere/crypt"
	"github.com/coldbound/overthere/internal/logx"
	"github.com/coldbound/overthere/message"
	"github.com/coldbound/overthere/transport"
	"github.com/coldbound/overthere/transport/tcp"
	"github.com/coldbound/overthere/transport/udp"
	"github.com/coldbound/overthere/wire"
)

// DefaultAskTimeout is the default deadline for Client.Ask when the
// caller's context carries none of its own.
const DefaultAskTimeout = 5 * time.Second

// DefaultPacketTTL is how long an incomplete packet group is held before
// the InputProcessor's assembler evicts it.
const DefaultPacketTTL = 5 * time.Minute

// DefaultMailboxCapacity is the outbound/inbound channel depth
// (internal_buffer_size) used when no WithMailboxCapacity option is given.
const DefaultMailboxCapacity = 1000

type clientConfig struct {
	transport       string
	askTimeout      time.Duration
	packetTTL       time.Duration
	auth            auth.Authenticator
	cipher          crypt.Bicrypter
	logger          logx.Logger
	maxPacketBytes  int
	mailboxCapacity int
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		transport:       "tcp",
		askTimeout:      DefaultAskTimeout,
		packetTTL:       DefaultPacketTTL,
		auth:            auth.NoopAuthenticator{},
		cipher:          crypt.NoopBicrypter{},
		logger:          logx.Noop{},
		mailboxCapacity: DefaultMailboxCapacity,
	}
}

// ClientOption configures a Client built by NewClient, following the
// teacher's fluent functional-options convention
// (client.NewClient(name, client.WithTCP(addr), ...)).
type ClientOption func(*clientConfig)

// WithTransport selects "tcp" (default) or "udp".
func WithTransport(kind string) ClientOption {
	return func(c *clientConfig) { c.transport = kind }
}

// WithAskTimeout overrides the default deadline for Ask calls whose context
// carries no deadline of its own.
func WithAskTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.askTimeout = d }
}

// WithPacketTTL overrides how long an incomplete packet group is held
// before eviction.
func WithPacketTTL(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.packetTTL = d }
}

// WithAuthenticator sets the packet signer/verifier pair.
func WithAuthenticator(a auth.Authenticator) ClientOption {
	return func(c *clientConfig) { c.auth = a }
}

// WithCipher sets the message-level AEAD encrypter/decrypter pair.
func WithCipher(b crypt.Bicrypter) ClientOption {
	return func(c *clientConfig) { c.cipher = b }
}

// WithLogger overrides the client's logger.
func WithLogger(l logx.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// WithMaxPacketBytes overrides the transport's default packet size budget.
func WithMaxPacketBytes(n int) ClientOption {
	return func(c *clientConfig) { c.maxPacketBytes = n }
}

// WithMailboxCapacity overrides the outbound mailbox depth.
func WithMailboxCapacity(n int) ClientOption {
	return func(c *clientConfig) { c.mailboxCapacity = n }
}

// Client issues requests against one server address and waits on
// CallbackManager-mediated replies with a timeout.
type Client struct {
	conn       interface{ Close() error }
	em         *EventManager
	callbacks  *CallbackManager
	askTimeout time.Duration
	logger     logx.Logger

	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewClient dials addr over the configured transport and starts the
// connection's event manager.
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var conn FrameConn
	var closer interface{ Close() error }
	maxPacketBytes := cfg.maxPacketBytes

	switch cfg.transport {
	case "", "tcp":
		c, err := tcp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("rpc: dial tcp %s: %w", addr, err)
		}
		conn, closer = c, c
		if maxPacketBytes == 0 {
			maxPacketBytes = transport.MaxPacketBytesTCP
		}
	case "udp":
		c, err := udp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("rpc: dial udp %s: %w", addr, err)
		}
		conn, closer = c, c
		if maxPacketBytes == 0 {
			maxPacketBytes = c.MaxPacketBytes()
		}
	default:
		return nil, fmt.Errorf("rpc: unknown transport %q", cfg.transport)
	}

	out := wire.NewOutputProcessor(cfg.auth, cfg.cipher, maxPacketBytes)
	in := wire.NewInputProcessor(cfg.auth, cfg.cipher, cfg.packetTTL)
	em := NewEventManager(conn, out, in, addr, cfg.mailboxCapacity, cfg.logger)

	ctx, cancel := context.WithCancel(context.Background())
	cl := &Client{
		conn:       closer,
		em:         em,
		callbacks:  NewCallbackManager(),
		askTimeout: cfg.askTimeout,
		logger:     cfg.logger,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}

	inboundCh := make(chan Inbound, cfg.mailboxCapacity)
	em.Start(ctx, inboundCh)
	cl.callbacks.RunSweeper(time.Second, cl.stop)

	cl.wg.Add(1)
	go cl.dispatchLoop(inboundCh)

	return cl, nil
}

func (c *Client) dispatchLoop(inboundCh <-chan Inbound) {
	defer c.wg.Done()
	for inbound := range inboundCh {
		reply, ok := inbound.Msg.Content.ToReply()
		if !ok || inbound.Msg.ParentHeader == nil {
			c.logger.Warn("rpc: client: ignoring unexpected request from %s", inbound.Peer)
			continue
		}
		c.callbacks.Invoke(inbound.Msg.ParentHeader.ID, reply)
	}
}

// Close stops the event manager, the callback sweeper, and closes the
// underlying connection. The connection is closed first, since that is what
// ends the inbound loop's pending read.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.em.Stop()
	close(c.stop)
	return err
}

// Ask sends req and blocks for its reply, honoring ctx's deadline if it has
// one or the client's configured ask timeout otherwise.
func (c *Client) Ask(ctx context.Context, req message.Request) (message.Reply, error) {
	msg, err := message.NewRequestMsg(req)
	if err != nil {
		return message.Reply{}, &AskError{Kind: AskEncodingFailed, Cause: err}
	}
	id := msg.Header.ID

	askCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, c.askTimeout)
		defer cancel()
	}
	deadline, _ := askCtx.Deadline()
	replyCh := c.callbacks.Register(id, deadline)

	b, err := msg.Encode()
	if err != nil {
		c.callbacks.Cancel(id)
		return message.Reply{}, &AskError{Kind: AskEncodingFailed, Cause: err}
	}

	if err := c.em.Send(askCtx, b); err != nil {
		c.callbacks.Cancel(id)
		return message.Reply{}, &AskError{Kind: AskSendFailed, Cause: err}
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return message.Reply{}, &AskError{Kind: AskTimeout}
		}
		if reply.IsError() {
			return message.Reply{}, replyToAskError(reply)
		}
		return reply, nil
	case <-askCtx.Done():
		c.callbacks.Cancel(id)
		if errors.Is(askCtx.Err(), context.DeadlineExceeded) {
			return message.Reply{}, &AskError{Kind: AskTimeout, Cause: askCtx.Err()}
		}
		return message.Reply{}, &AskError{Kind: AskCallbackLost, Cause: askCtx.Err()}
	}
}

// Tell sends req without waiting for a reply.
func (c *Client) Tell(ctx context.Context, req message.Request) error {
	msg, err := message.NewRequestMsg(req)
	if err != nil {
		return &SendError{Cause: err}
	}
	b, err := msg.Encode()
	if err != nil {
		return &SendError{Cause: err}
	}
	if err := c.em.Send(ctx, b); err != nil {
		return &SendError{Cause: err}
	}
	return nil
}

// FileSigChangedError is the structured form of a FileSigChanged reply,
// surfaced via errors.As against an Ask failure.
type FileSigChangedError struct {
	ID     uint32
	NewSig uint32
}

func (e *FileSigChangedError) Error() string {
	return fmt.Sprintf("rpc: file %d signature changed, now %d", e.ID, e.NewSig)
}

func replyToAskError(reply message.Reply) error {
	switch reply.ErrorKind {
	case message.ErrFileSigChanged:
		var args message.FileSigChangedArgs
		if err := message.DecodeArgs(reply.Args, &args); err == nil {
			return &AskError{Kind: AskFailure, Cause: &FileSigChangedError{ID: args.ID, NewSig: args.NewSig}}
		}
	case message.ErrIO:
		var args message.IoErrorArgs
		if err := message.DecodeArgs(reply.Args, &args); err == nil {
			return &AskError{Kind: AskFailure, Msg: args.Description}
		}
	default:
		var args message.GenericErrorArgs
		if err := message.DecodeArgs(reply.Args, &args); err == nil {
			return &AskError{Kind: AskFailure, Msg: args.Msg}
		}
	}
	return &AskError{Kind: AskFailure, Msg: "unknown server error"}
}

func (c *Client) call(ctx context.Context, kind message.RequestKind, args interface{}, out interface{}) error {
	reply, err := c.Ask(ctx, message.Request{Kind: kind, Args: args})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return message.DecodeArgs(reply.Args, out)
}
