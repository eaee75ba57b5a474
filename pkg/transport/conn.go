package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/wire"
	"github.com/google/uuid"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBadEnvelope means a frame arrived intact but did not decode. The
	// stream stays usable.
	ErrBadEnvelope = errors.New("bad envelope")
)

// Conn is a framed envelope stream over a net.Conn. Send is safe for
// concurrent use; Receive must be called from one goroutine.
type Conn struct {
	id     string
	nc     net.Conn
	framer *Framer
	logger log.Logger
	role   log.Role

	readMu    sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newConn(nc net.Conn, maxFrameSize uint32, logger log.Logger, role log.Role) *Conn {
	c := &Conn{
		id:      uuid.New().String(),
		nc:      nc,
		framer:  NewFramer(nc, maxFrameSize),
		logger:  logger,
		role:    role,
		closeCh: make(chan struct{}),
	}
	if logger != nil {
		c.framer.SetLogger(logger, c.id)
	}
	return c
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.closeCh }

// Send writes one raw frame.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// SendEnvelope encodes and writes an envelope.
func (c *Conn) SendEnvelope(env *wire.Envelope) error {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := c.Send(data); err != nil {
		return err
	}
	c.logEnvelope(env, len(data), log.DirectionOut)
	return nil
}

// Receive reads the next envelope. A zero timeout blocks indefinitely.
func (c *Conn) Receive(timeout time.Duration) (*wire.Envelope, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(timeout))
		defer c.nc.SetReadDeadline(time.Time{})
	}
	data, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	c.logEnvelope(env, len(data), log.DirectionIn)
	return env, nil
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.nc.Close()
	})
	return err
}

func (c *Conn) logEnvelope(env *wire.Envelope, size int, dir log.Direction) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     categoryOf(env.Kind),
		Role:         c.role,
		RemoteAddr:   c.nc.RemoteAddr().String(),
		Message: &log.MessageEvent{
			Kind:        env.Kind.String(),
			SenderID:    env.Sender,
			TypeID:      env.Type,
			TypeName:    env.Name,
			SourceTime:  env.Time(),
			PayloadSize: size,
		},
	})
}

func (c *Conn) logState(oldState, newState string) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Role:         c.role,
		RemoteAddr:   c.nc.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func categoryOf(k wire.Kind) log.Category {
	switch k {
	case wire.KindPing, wire.KindPong:
		return log.CategoryControl
	case wire.KindTree:
		return log.CategoryTree
	default:
		return log.CategoryMessage
	}
}
