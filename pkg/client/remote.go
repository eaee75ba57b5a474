package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/transport"
	"github.com/devtree-io/devtree-go/pkg/wire"
)

// ErrRemoteClosed is returned by Poll after Close.
var ErrRemoteClosed = errors.New("remote source closed")

// DefaultRemoteQueue bounds the data envelopes held between polls.
const DefaultRemoteQueue = 4096

// RemoteConfig configures a Remote source.
type RemoteConfig struct {
	// Address of the server. Ignored when Locate is set.
	Address string

	// Locate finds the server address before every dial attempt, e.g. via
	// discovery.FindServer.
	Locate func(ctx context.Context) (string, error)

	Dial      transport.DialConfig
	Backoff   transport.BackoffConfig
	KeepAlive transport.KeepAliveConfig

	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Address:   "localhost" + transport.DefaultAddress,
		Dial:      transport.DefaultDialConfig(),
		Backoff:   transport.DefaultBackoffConfig(),
		KeepAlive: transport.DefaultKeepAliveConfig(),
	}
}

// Remote is a Source fed by a TCP connection to a server. It reconnects
// with backoff and drops connections whose pings go unanswered. After a
// reconnect the server announces names and the tree again.
type Remote struct {
	config   RemoteConfig
	redialer *transport.Redialer
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	queue   []*wire.Envelope
	dropped uint64
	closed  bool
	notify  chan struct{}
}

var (
	_ Source   = (*Remote)(nil)
	_ Notifier = (*Remote)(nil)
)

// NewRemote starts connecting in the background.
func NewRemote(ctx context.Context, config RemoteConfig) *Remote {
	if config.Dial.Logger == nil {
		config.Dial.Logger = config.Logger
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Remote{
		config: config,
		cancel: cancel,
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}

	var dial transport.DialFunc
	if config.Locate != nil {
		dial = func(ctx context.Context) (*transport.Conn, error) {
			addr, err := config.Locate(ctx)
			if err != nil {
				return nil, err
			}
			return transport.Dial(ctx, addr, config.Dial)
		}
	}
	r.redialer = transport.NewRedialer(transport.RedialConfig{
		Address:    config.Address,
		Dial:       dial,
		DialConfig: config.Dial,
		Backoff:    config.Backoff,
		Log:        config.Log,
	})

	go func() {
		defer close(r.done)
		r.redialer.Run(ctx, r.serve)
	}()
	return r
}

// OnStateChange forwards connection state transitions to fn.
func (r *Remote) OnStateChange(fn func(oldState, newState transport.State)) {
	r.redialer.OnStateChange(fn)
}

func (r *Remote) State() transport.State { return r.redialer.State() }

func (r *Remote) serve(ctx context.Context, c *transport.Conn) {
	ka := transport.NewKeepAlive(r.config.KeepAlive, func(seq uint32) error {
		return c.SendEnvelope(wire.NewPing(seq))
	}, func() {
		r.debugLog("server stopped answering pings", "conn", c.ID())
		c.Close()
	})
	ka.Start(ctx)
	defer ka.Stop()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.Done():
		}
	}()

	for {
		env, err := c.Receive(0)
		if err != nil {
			if errors.Is(err, transport.ErrBadEnvelope) {
				r.debugLog("bad envelope", "error", err)
				continue
			}
			r.debugLog("connection lost", "conn", c.ID(), "error", err)
			return
		}
		if env.Kind == wire.KindPong {
			ka.PongReceived(env.Sequence)
			continue
		}
		r.push(env)
	}
}

func (r *Remote) push(env *wire.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if env.Kind == wire.KindData && len(r.queue) >= DefaultRemoteQueue {
		r.dropped++
		return
	}
	r.queue = append(r.queue, env)
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Remote) Poll() ([]*wire.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRemoteClosed
	}
	out := r.queue
	r.queue = nil
	return out, nil
}

func (r *Remote) Notify() <-chan struct{} { return r.notify }

// Dropped returns how many data envelopes overflowed the queue.
func (r *Remote) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops reconnecting and waits for the connection goroutine.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.queue = nil
	r.mu.Unlock()

	r.cancel()
	<-r.done
	return nil
}

func (r *Remote) debugLog(msg string, args ...any) {
	if r.config.Log != nil {
		r.config.Log.Debug(msg, args...)
	}
}
