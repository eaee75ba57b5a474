package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/wire"
)

// DefaultAddress is the listen address used when none is configured.
const DefaultAddress = ":3883"

// ErrServerRunning is returned by Start on a running server.
var ErrServerRunning = errors.New("server already running")

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on, e.g. ":3883" or "127.0.0.1:0".
	Address string

	// MaxFrameSize limits inbound and outbound frames.
	MaxFrameSize uint32

	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger

	// OnConnect runs on the connection's goroutine before its read loop.
	// The connection joins the broadcast set when it returns; Broadcast
	// waits while it runs.
	OnConnect func(conn *Conn)

	// OnDisconnect runs after the connection's read loop ends.
	OnDisconnect func(conn *Conn)

	// OnEnvelope receives every envelope except pings, which the server
	// answers itself.
	OnEnvelope func(conn *Conn, env *wire.Envelope)

	// OnError reports read and accept errors. conn is nil for accept errors.
	OnError func(conn *Conn, err error)
}

// DefaultServerConfig returns a config listening on DefaultAddress.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      DefaultAddress,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

// Server accepts plain TCP connections carrying framed envelopes.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// admitMu orders broadcasts against connections joining.
	admitMu sync.Mutex
	connsMu sync.RWMutex
	conns   map[*Conn]struct{}

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.debugLog("transport listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection, then waits for all
// connection goroutines to exit.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the listen port, or 0 before Start.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Broadcast sends an envelope to every connection. Each failed write is
// reported through OnError; the joined errors are returned.
func (s *Server) Broadcast(env *wire.Envelope) error {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	s.connsMu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			s.reportWriteError(c, err)
			errs = append(errs, fmt.Errorf("connection %s: %w", c.ID(), err))
			continue
		}
		c.logEnvelope(env, len(data), log.DirectionOut)
	}
	return errors.Join(errs...)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept: %w", err))
			}
			continue
		}
		s.wg.Add(1)
		go s.handle(nc)
	}
}

func (s *Server) handle(nc net.Conn) {
	defer s.wg.Done()

	c := newConn(nc, s.config.MaxFrameSize, s.config.Logger, log.RoleServer)
	c.logState("", "CONNECTED")
	s.debugLog("client connected", "conn", c.ID(), "remote", nc.RemoteAddr().String())

	s.admitMu.Lock()
	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
	s.admitMu.Unlock()

	s.readLoop(c)

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
	c.Close()

	c.logState("CONNECTED", "DISCONNECTED")
	s.debugLog("client disconnected", "conn", c.ID())
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
}

func (s *Server) readLoop(c *Conn) {
	for {
		select {
		case <-c.Done():
			return
		case <-s.ctx.Done():
			return
		default:
		}

		env, err := c.Receive(0)
		if err != nil {
			if errors.Is(err, ErrBadEnvelope) {
				s.reportError(c, err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrConnectionClosed) && s.running.Load() {
				s.reportError(c, err)
			}
			return
		}

		if env.Kind == wire.KindPing {
			if err := c.SendEnvelope(wire.NewPong(env.Sequence)); err != nil {
				s.reportError(c, err)
			}
			continue
		}
		if s.config.OnEnvelope != nil {
			s.config.OnEnvelope(c, env)
		}
	}
}

func (s *Server) reportError(c *Conn, err error) {
	select {
	case <-c.Done():
		return
	default:
	}
	if s.config.Logger != nil {
		s.config.Logger.Log(log.NewErrorEvent(c.ID(), log.LayerTransport, err, "read"))
	}
	if s.config.OnError != nil {
		s.config.OnError(c, err)
	}
}

func (s *Server) reportWriteError(c *Conn, err error) {
	if s.config.Logger != nil {
		s.config.Logger.Log(log.NewErrorEvent(c.ID(), log.LayerTransport, err, "broadcast"))
	}
	if s.config.OnError != nil {
		s.config.OnError(c, err)
	}
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Log != nil {
		s.config.Log.Debug(msg, args...)
	}
}
