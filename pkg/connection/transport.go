package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/wire"
)

// Transport errors.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrInvalidHandle   = errors.New("sender and message type must be concrete")
)

// Handler receives data messages matching its registration.
type Handler func(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte)

// Transport carries name registrations, data and the serialized path tree
// to clients. Implementations are safe for concurrent use.
type Transport interface {
	RegisterMessageType(id uint32, name string) error
	RegisterSender(id uint32, name string) error

	// RegisterHandler adds fn for inbound data. AnySender and
	// AnyRawMessageType act as wildcards.
	RegisterHandler(sender SenderType, msgType RawMessageType, fn Handler)

	Send(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte) error
	SendTree(payload []byte) error

	// Poll dispatches pending inbound data to handlers.
	Poll() error
	Close() error
}

// Subscriber is implemented by transports that can feed in-process
// clients.
type Subscriber interface {
	Subscribe() (*Subscription, error)
}

// DefaultSubscriptionQueue bounds the data envelopes a Subscription holds
// between polls. Name registrations and trees are never dropped.
const DefaultSubscriptionQueue = 4096

// Subscription is one in-process client's view of a transport. It starts
// with every name registered so far and the latest tree.
type Subscription struct {
	owner *Loopback

	mu      sync.Mutex
	queue   []*wire.Envelope
	dropped uint64
	closed  bool
	notify  chan struct{}
}

func newSubscription(owner *Loopback, greeting []*wire.Envelope) *Subscription {
	s := &Subscription{
		owner:  owner,
		queue:  greeting,
		notify: make(chan struct{}, 1),
	}
	if len(greeting) > 0 {
		s.notify <- struct{}{}
	}
	return s
}

func (s *Subscription) push(env *wire.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if env.Kind == wire.KindData && len(s.queue) >= DefaultSubscriptionQueue {
		s.dropped++
		return
	}
	s.queue = append(s.queue, env)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Poll returns and clears the queued envelopes.
func (s *Subscription) Poll() ([]*wire.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrTransportClosed
	}
	out := s.queue
	s.queue = nil
	return out, nil
}

// Notify is signalled when envelopes are queued.
func (s *Subscription) Notify() <-chan struct{} { return s.notify }

// Dropped returns how many data envelopes overflowed the queue.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.owner.unsubscribe(s)
	return nil
}

type handlerEntry struct {
	sender  SenderType
	msgType RawMessageType
	fn      Handler
}

// Loopback is the in-process Transport. Data sent through it is queued for
// every subscription and, on Poll, for matching handlers.
type Loopback struct {
	mu       sync.Mutex
	names    []*wire.Envelope
	tree     []byte
	subs     map[*Subscription]struct{}
	handlers []handlerEntry
	inbound  []*wire.Envelope
	closed   bool
}

func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[*Subscription]struct{})}
}

var (
	_ Transport  = (*Loopback)(nil)
	_ Subscriber = (*Loopback)(nil)
)

func (l *Loopback) RegisterMessageType(id uint32, name string) error {
	return l.announce(wire.NewTypeName(id, name))
}

func (l *Loopback) RegisterSender(id uint32, name string) error {
	return l.announce(wire.NewSenderName(id, name))
}

func (l *Loopback) announce(env *wire.Envelope) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	l.names = append(l.names, env)
	l.mu.Unlock()
	l.publish(env)
	return nil
}

func (l *Loopback) RegisterHandler(sender SenderType, msgType RawMessageType, fn Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handlerEntry{sender: sender, msgType: msgType, fn: fn})
}

func (l *Loopback) Send(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte) error {
	env, err := dataEnvelope(sender, msgType, ts, payload)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	if len(l.handlers) > 0 {
		l.inbound = append(l.inbound, env)
	}
	l.mu.Unlock()
	l.publish(env)
	return nil
}

func (l *Loopback) SendTree(payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	l.tree = append([]byte(nil), payload...)
	l.mu.Unlock()
	l.publish(wire.NewTreeEnvelope(payload))
	return nil
}

// deliver queues data that arrived from a remote peer for the handlers.
func (l *Loopback) deliver(env *wire.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed && len(l.handlers) > 0 {
		l.inbound = append(l.inbound, env)
	}
}

func (l *Loopback) Poll() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	pending := l.inbound
	l.inbound = nil
	handlers := append([]handlerEntry(nil), l.handlers...)
	l.mu.Unlock()

	for _, env := range pending {
		sender, msgType := NewSenderType(env.Sender), NewRawMessageType(env.Type)
		for _, h := range handlers {
			if h.sender.Matches(sender) && h.msgType.Matches(msgType) {
				h.fn(sender, msgType, env.Time(), env.Payload)
			}
		}
	}
	return nil
}

func (l *Loopback) Subscribe() (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrTransportClosed
	}
	s := newSubscription(l, l.snapshotLocked())
	l.subs[s] = struct{}{}
	return s, nil
}

// Snapshot returns the envelopes a newly joined peer needs: every name
// registration in order, then the latest tree.
func (l *Loopback) Snapshot() []*wire.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loopback) snapshotLocked() []*wire.Envelope {
	out := append([]*wire.Envelope(nil), l.names...)
	if l.tree != nil {
		out = append(out, wire.NewTreeEnvelope(l.tree))
	}
	return out
}

func (l *Loopback) unsubscribe(s *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, s)
}

func (l *Loopback) publish(env *wire.Envelope) {
	l.mu.Lock()
	subs := make([]*Subscription, 0, len(l.subs))
	for s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()
	for _, s := range subs {
		s.push(env)
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	subs := l.subs
	l.subs = make(map[*Subscription]struct{})
	l.inbound = nil
	l.mu.Unlock()

	for s := range subs {
		s.Close()
	}
	return nil
}

func dataEnvelope(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte) (*wire.Envelope, error) {
	sid, ok := sender.ID()
	if !ok {
		return nil, ErrInvalidHandle
	}
	tid, ok := msgType.ID()
	if !ok {
		return nil, ErrInvalidHandle
	}
	return wire.NewDataEnvelope(sid, tid, ts, payload), nil
}
