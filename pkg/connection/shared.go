package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/transport"
	"github.com/devtree-io/devtree-go/pkg/wire"
)

// SharedConfig configures a Shared transport.
type SharedConfig struct {
	// Address to listen on. Defaults to transport.DefaultAddress.
	Address      string
	MaxFrameSize uint32

	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

// DefaultSharedConfig listens on transport.DefaultAddress.
func DefaultSharedConfig() SharedConfig {
	return SharedConfig{
		Address:      transport.DefaultAddress,
		MaxFrameSize: transport.DefaultMaxFrameSize,
	}
}

// Shared serves in-process subscribers like a Loopback and mirrors every
// envelope to remote clients over TCP. Clients that connect late first
// receive all name registrations and the latest tree, and only then join
// the broadcast set. A failed write to one remote client is logged and
// never fails the publishing call.
type Shared struct {
	*Loopback
	server *transport.Server
	logger log.Logger
	log    *slog.Logger

	// pubMu keeps local state and broadcasts in the same order.
	pubMu sync.Mutex
}

var _ Transport = (*Shared)(nil)

// NewShared starts listening. The server stops when ctx ends or on Close.
func NewShared(ctx context.Context, config SharedConfig) (*Shared, error) {
	s := &Shared{Loopback: NewLoopback(), logger: config.Logger, log: config.Log}
	s.server = transport.NewServer(transport.ServerConfig{
		Address:      config.Address,
		MaxFrameSize: config.MaxFrameSize,
		Logger:       config.Logger,
		Log:          config.Log,
		OnConnect:    s.greet,
		OnEnvelope:   s.receive,
		OnError:      s.peerError,
	})
	if err := s.server.Start(ctx); err != nil {
		return nil, fmt.Errorf("start shared transport: %w", err)
	}
	return s, nil
}

// Addr returns the listen address.
func (s *Shared) Addr() net.Addr { return s.server.Addr() }

// Port returns the listen port.
func (s *Shared) Port() int { return s.server.Port() }

// ClientCount returns the number of connected remote clients.
func (s *Shared) ClientCount() int { return s.server.ConnectionCount() }

func (s *Shared) RegisterMessageType(id uint32, name string) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if err := s.Loopback.RegisterMessageType(id, name); err != nil {
		return err
	}
	s.broadcast(wire.NewTypeName(id, name))
	return nil
}

func (s *Shared) RegisterSender(id uint32, name string) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if err := s.Loopback.RegisterSender(id, name); err != nil {
		return err
	}
	s.broadcast(wire.NewSenderName(id, name))
	return nil
}

func (s *Shared) Send(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte) error {
	env, err := dataEnvelope(sender, msgType, ts, payload)
	if err != nil {
		return err
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if err := s.Loopback.Send(sender, msgType, ts, payload); err != nil {
		return err
	}
	s.broadcast(env)
	return nil
}

func (s *Shared) SendTree(payload []byte) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if err := s.Loopback.SendTree(payload); err != nil {
		return err
	}
	s.broadcast(wire.NewTreeEnvelope(payload))
	return nil
}

// broadcast mirrors env to the remote clients. The server reports each
// failed client through OnError.
func (s *Shared) broadcast(env *wire.Envelope) {
	if err := s.server.Broadcast(env); err != nil {
		s.debugLog("broadcast incomplete", "kind", env.Kind.String(), "error", err)
	}
}

func (s *Shared) Close() error {
	err := s.server.Stop()
	s.Loopback.Close()
	return err
}

// greet runs before c joins the broadcast set, so nothing published after
// the snapshot can overtake it.
func (s *Shared) greet(c *transport.Conn) {
	for _, env := range s.Snapshot() {
		if err := c.SendEnvelope(env); err != nil {
			if s.logger != nil {
				s.logger.Log(log.NewErrorEvent(c.ID(), log.LayerTransport, err, "greeting"))
			}
			s.peerError(c, fmt.Errorf("greeting: %w", err))
			c.Close()
			return
		}
	}
}

func (s *Shared) peerError(c *transport.Conn, err error) {
	if c == nil {
		s.debugLog("transport error", "error", err)
		return
	}
	s.debugLog("client error", "conn", c.ID(), "error", err)
}

func (s *Shared) receive(c *transport.Conn, env *wire.Envelope) {
	if env.Kind != wire.KindData {
		s.debugLog("ignoring envelope from client", "conn", c.ID(), "kind", env.Kind.String())
		return
	}
	s.deliver(env)
}

func (s *Shared) debugLog(msg string, args ...any) {
	if s.log != nil {
		s.log.Debug(msg, args...)
	}
}
