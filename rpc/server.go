package rpc

import (
	"context"
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

// Defaults for ServerConfig, mirroring the client's DefaultAskTimeout /
// DefaultPacketTTL / DefaultMailboxCapacity convention.
const (
	DefaultCleanupInterval   = 60 * time.Second
	DefaultUntouchedFileTTL  = 150 * time.Second
	DefaultUntouchedProcTTL  = 300 * time.Second
	DefaultDeadProcTTL       = 30 * time.Second
	DefaultBatchConcurrency  = 16
	DefaultConnectionTimeout = 10 * time.Minute
)

// CustomHandler answers a Custom request's opaque payload.
type CustomHandler func(data []byte) ([]byte, error)

type serverConfig struct {
	transport         string
	packetTTL         time.Duration
	cleanupInterval   time.Duration
	untouchedFileTTL  time.Duration
	untouchedProcTTL  time.Duration
	deadProcTTL       time.Duration
	connectionTimeout time.Duration
	batchConcurrency  int
	mailboxCapacity   int
	workingDir        string
	auth              auth.Authenticator
	cipher            crypt.Bicrypter
	logger            logx.Logger
	maxPacketBytes    int
	customHandler     CustomHandler
}

func defaultServerConfig() *serverConfig {
	return &serverConfig{
		transport:         "tcp",
		packetTTL:         DefaultPacketTTL,
		cleanupInterval:   DefaultCleanupInterval,
		untouchedFileTTL:  DefaultUntouchedFileTTL,
		untouchedProcTTL:  DefaultUntouchedProcTTL,
		deadProcTTL:       DefaultDeadProcTTL,
		connectionTimeout: DefaultConnectionTimeout,
		batchConcurrency:  DefaultBatchConcurrency,
		mailboxCapacity:   DefaultMailboxCapacity,
		workingDir:        ".",
		auth:              auth.NoopAuthenticator{},
		cipher:            crypt.NoopBicrypter{},
		logger:            logx.Noop{},
	}
}

// ServerOption configures a Server built by NewServer.
type ServerOption func(*serverConfig)

// WithServerTransport selects "tcp" (default) or "udp".
func WithServerTransport(kind string) ServerOption {
	return func(c *serverConfig) { c.transport = kind }
}

// WithServerPacketTTL overrides how long an incomplete packet group is held
// before eviction.
func WithServerPacketTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.packetTTL = d }
}

// WithCleanupInterval overrides how often the janitor loop runs.
func WithCleanupInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.cleanupInterval = d }
}

// WithUntouchedFileTTL overrides how long an open file may sit untouched
// before the janitor closes it.
func WithUntouchedFileTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.untouchedFileTTL = d }
}

// WithUntouchedProcTTL overrides how long a running process may sit
// untouched before the janitor kills it.
func WithUntouchedProcTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.untouchedProcTTL = d }
}

// WithDeadProcTTL overrides how long an exited process's status record is
// retained before eviction.
func WithDeadProcTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.deadProcTTL = d }
}

// WithConnectionTimeout overrides how long a connection record may sit
// without traffic before the janitor drops it (TCP sockets are closed
// outright; UDP peer state is simply forgotten).
func WithConnectionTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.connectionTimeout = d }
}

// WithBatchConcurrency overrides how many Batch sub-requests may run
// concurrently.
func WithBatchConcurrency(n int) ServerOption {
	return func(c *serverConfig) { c.batchConcurrency = n }
}

// WithWorkingDir sets the directory relative paths are resolved against.
func WithWorkingDir(dir string) ServerOption {
	return func(c *serverConfig) { c.workingDir = dir }
}

// WithServerAuthenticator sets the packet signer/verifier pair.
func WithServerAuthenticator(a auth.Authenticator) ServerOption {
	return func(c *serverConfig) { c.auth = a }
}

// WithServerCipher sets the message-level AEAD encrypter/decrypter pair.
func WithServerCipher(b crypt.Bicrypter) ServerOption {
	return func(c *serverConfig) { c.cipher = b }
}

// WithServerLogger overrides the server's logger.
func WithServerLogger(l logx.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// WithServerMaxPacketBytes overrides the transport's default packet size
// budget.
func WithServerMaxPacketBytes(n int) ServerOption {
	return func(c *serverConfig) { c.maxPacketBytes = n }
}

// WithServerMailboxCapacity overrides each connection's outbound mailbox
// depth.
func WithServerMailboxCapacity(n int) ServerOption {
	return func(c *serverConfig) { c.mailboxCapacity = n }
}

// WithCustomHandler installs the handler invoked for KindCustom requests.
func WithCustomHandler(h CustomHandler) ServerOption {
	return func(c *serverConfig) { c.customHandler = h }
}

// Server dispatches requests arriving over one listening address: a
// connections table, a FileManager and ProcManager holding all mutable
// server-side state, and a periodic janitor closing what callers have
// abandoned. It mirrors Client's shape (functional options, an
// EventManager or AddrEventManager funneling Inbound onto one dispatch
// loop) but owns many peers instead of one.
type Server struct {
	cfg    *serverConfig
	addr   string
	logger logx.Logger

	fsManager   *FileManager
	procManager *ProcManager

	mu          sync.Mutex
	connections map[string]time.Time

	tcpListener *tcp.Listener
	udpSocket   *udp.Socket
	addrEM      *AddrEventManager

	tcpMu  sync.Mutex
	tcpEMs map[string]*tcpPeer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a Server bound to addr but does not yet start listening;
// call Start to begin accepting connections.
func NewServer(addr string, opts ...ServerOption) (*Server, error) {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Server{
		cfg:         cfg,
		addr:        addr,
		logger:      cfg.logger,
		fsManager:   NewFileManager(),
		procManager: NewProcManager(),
		connections: make(map[string]time.Time),
		tcpEMs:      make(map[string]*tcpPeer),
	}, nil
}

// Start binds the configured transport and begins dispatching requests
// until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	inboundCh := make(chan Inbound, s.cfg.mailboxCapacity)

	s.wg.Add(1)
	go s.dispatchLoop(ctx, inboundCh)

	s.wg.Add(1)
	go s.cleanupLoop(ctx)

	switch s.cfg.transport {
	case "", "tcp":
		ln, err := tcp.Listen(s.addr)
		if err != nil {
			return fmt.Errorf("rpc: server: %w", err)
		}
		s.tcpListener = ln
		s.wg.Add(1)
		go s.acceptLoop(ctx, inboundCh)
	case "udp":
		sock, err := udp.Listen(s.addr)
		if err != nil {
			return fmt.Errorf("rpc: server: %w", err)
		}
		s.udpSocket = sock
		maxPacketBytes := s.cfg.maxPacketBytes
		if maxPacketBytes == 0 {
			maxPacketBytes = udp.MaxPacketBytes(sock.LocalAddr())
		}
		out := wire.NewOutputProcessor(s.cfg.auth, s.cfg.cipher, maxPacketBytes)
		newInput := func() *wire.InputProcessor {
			return wire.NewInputProcessor(s.cfg.auth, s.cfg.cipher, s.cfg.packetTTL)
		}
		s.addrEM = NewAddrEventManager(sock, out, newInput, s.cfg.mailboxCapacity, s.logger)
		s.addrEM.Start(ctx, inboundCh)
	default:
		return fmt.Errorf("rpc: server: unknown transport %q", s.cfg.transport)
	}

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, inboundCh chan<- Inbound) {
	defer s.wg.Done()
	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("rpc: server: accept failed: %v", err)
			continue
		}

		peer := conn.RemoteAddr().String()
		maxPacketBytes := s.cfg.maxPacketBytes
		if maxPacketBytes == 0 {
			maxPacketBytes = transport.MaxPacketBytesTCP
		}
		out := wire.NewOutputProcessor(s.cfg.auth, s.cfg.cipher, maxPacketBytes)
		in := wire.NewInputProcessor(s.cfg.auth, s.cfg.cipher, s.cfg.packetTTL)
		em := NewEventManager(conn, out, in, peer, s.cfg.mailboxCapacity, s.logger)

		s.tcpMu.Lock()
		s.tcpEMs[peer] = &tcpPeer{em: em, conn: conn}
		s.tcpMu.Unlock()

		em.Start(ctx, inboundCh)
	}
}

// tcpPeer pairs one accepted connection's EventManager with the conn
// itself, since FrameConn (what EventManager holds) has no Close method of
// its own; the janitor needs both to drop a stale TCP peer cleanly.
type tcpPeer struct {
	em   *EventManager
	conn *tcp.Conn
}

func (s *Server) dispatchLoop(ctx context.Context, inboundCh <-chan Inbound) {
	defer s.wg.Done()
	for {
		select {
		case inbound := <-inboundCh:
			s.touchConnection(inbound.Peer)
			s.handleInbound(ctx, inbound)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleInbound(ctx context.Context, inbound Inbound) {
	req, ok := inbound.Msg.Content.ToRequest()
	if !ok {
		s.logger.Warn("rpc: server: ignoring unexpected reply from %s", inbound.Peer)
		return
	}

	reply := s.handle(ctx, inbound.Peer, req)
	replyMsg, err := message.NewReplyMsg(inbound.Msg.Header, reply)
	if err != nil {
		s.logger.Warn("rpc: server: build reply header to %s: %v", inbound.Peer, err)
		return
	}
	b, err := replyMsg.Encode()
	if err != nil {
		s.logger.Warn("rpc: server: encode reply to %s: %v", inbound.Peer, err)
		return
	}
	if err := inbound.Reply(ctx, b); err != nil {
		s.logger.Warn("rpc: server: send reply to %s: %v", inbound.Peer, err)
	}
}

func (s *Server) touchConnection(peer string) {
	s.mu.Lock()
	s.connections[peer] = time.Now()
	s.mu.Unlock()
}

func (s *Server) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.fsManager.CleanupUntouched(s.cfg.untouchedFileTTL)
			s.procManager.CleanupUntouched(s.cfg.untouchedProcTTL)
			s.procManager.CleanupDead(s.cfg.deadProcTTL)
			s.dropStaleConnections()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) dropStaleConnections() {
	now := time.Now()
	var stale []string
	s.mu.Lock()
	for peer, lastSeen := range s.connections {
		if now.Sub(lastSeen) > s.cfg.connectionTimeout {
			stale = append(stale, peer)
		}
	}
	for _, peer := range stale {
		delete(s.connections, peer)
	}
	s.mu.Unlock()

	for _, peer := range stale {
		s.fsManager.DropConnection(peer)
		s.procManager.DropConnection(peer)

		s.tcpMu.Lock()
		p, ok := s.tcpEMs[peer]
		if ok {
			delete(s.tcpEMs, peer)
		}
		s.tcpMu.Unlock()
		if ok {
			p.conn.Close()
			p.em.Stop()
		}
	}
}

// Addr returns the address the server is bound to, once Start has
// succeeded.
func (s *Server) Addr() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	if s.udpSocket != nil {
		return s.udpSocket.LocalAddr().String()
	}
	return s.addr
}

// Stop cancels every goroutine the server started and closes its listener
// or socket.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	if s.udpSocket != nil {
		s.udpSocket.Close()
	}
	s.wg.Wait()
	return nil
}
