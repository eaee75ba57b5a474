package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/devtree-io/devtree-go/pkg/transport"
	"github.com/devtree-io/devtree-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockTransport records calls in order alongside testify expectations.
type mockTransport struct {
	mock.Mock
	calls *[]string
}

func (m *mockTransport) RegisterMessageType(id uint32, name string) error {
	return m.Called(id, name).Error(0)
}

func (m *mockTransport) RegisterSender(id uint32, name string) error {
	return m.Called(id, name).Error(0)
}

func (m *mockTransport) RegisterHandler(sender SenderType, msgType RawMessageType, fn Handler) {
	m.Called(sender, msgType, fn)
}

func (m *mockTransport) Send(sender SenderType, msgType RawMessageType, ts time.Time, payload []byte) error {
	*m.calls = append(*m.calls, "send")
	return m.Called(sender, msgType, ts, payload).Error(0)
}

func (m *mockTransport) SendTree(payload []byte) error {
	return m.Called(payload).Error(0)
}

func (m *mockTransport) Poll() error  { return m.Called().Error(0) }
func (m *mockTransport) Close() error { return m.Called().Error(0) }

// recordingGuard wraps a guard and logs lock attempts.
type recordingGuard struct {
	inner Guard
	calls *[]string
}

func (g *recordingGuard) Lock() bool {
	ok := g.inner.Lock()
	if ok {
		*g.calls = append(*g.calls, "lock:true")
	} else {
		*g.calls = append(*g.calls, "lock:false")
	}
	return ok
}

func (g *recordingGuard) Locked() bool  { return g.inner.Locked() }
func (g *recordingGuard) Release()      { g.inner.Release() }
func (g *recordingGuard) Unwrap() Guard { return g.inner }

func newMockConnection(t *testing.T) (*Connection, *mockTransport, *[]string) {
	t.Helper()
	calls := &[]string{}
	m := &mockTransport{calls: calls}
	m.On("RegisterMessageType", mock.Anything, mock.Anything).Return(nil)
	m.On("RegisterSender", mock.Anything, mock.Anything).Return(nil)
	return New(m, DefaultConfig()), m, calls
}

func TestRegistryStableIDs(t *testing.T) {
	r := NewRegistry()

	a, isNew := r.RegisterSender("p/a")
	assert.True(t, isNew)
	b, _ := r.RegisterSender("p/b")
	again, isNew := r.RegisterSender("p/a")

	assert.False(t, isNew)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, uint32(0), a)

	name, ok := r.SenderName(b)
	require.True(t, ok)
	assert.Equal(t, "p/b", name)

	_, ok = r.SenderName(99)
	assert.False(t, ok)
	assert.Equal(t, []string{"p/a", "p/b"}, r.Senders())
}

func TestMessageTypeRegistration(t *testing.T) {
	conn, m, _ := newMockConnection(t)

	pose, err := conn.RegisterMessageType("devtree.report.pose")
	require.NoError(t, err)
	button, err := conn.RegisterMessageType("devtree.report.button")
	require.NoError(t, err)
	again, err := conn.RegisterMessageType("devtree.report.pose")
	require.NoError(t, err)

	assert.Equal(t, pose, again)
	assert.NotEqual(t, pose.Raw(), button.Raw())
	assert.False(t, pose.IsAny())
	assert.Equal(t, "devtree.report.pose", pose.Name())

	// Announced once per name.
	m.AssertNumberOfCalls(t, "RegisterMessageType", 2)

	_, err = conn.RegisterMessageType("")
	assert.ErrorIs(t, err, ErrEmptyTypeName)
}

func TestFailedAnnounceIsNotCommitted(t *testing.T) {
	m := &mockTransport{calls: &[]string{}}
	down := errors.New("transport down")
	m.On("RegisterSender", uint32(0), "p/d").Return(down).Once()
	m.On("RegisterSender", uint32(0), "p/d").Return(nil)
	m.On("RegisterMessageType", uint32(0), "devtree.report.pose").Return(down).Once()
	m.On("RegisterMessageType", uint32(0), "devtree.report.pose").Return(nil)
	conn := New(m, DefaultConfig())

	_, err := conn.RegisterDevice("p/d")
	assert.ErrorIs(t, err, down)
	_, ok := conn.Registry().SenderID("p/d")
	assert.False(t, ok, "sender kept after a failed announce")

	_, err = conn.RegisterMessageType("devtree.report.pose")
	assert.ErrorIs(t, err, down)
	_, ok = conn.Registry().TypeID("devtree.report.pose")
	assert.False(t, ok, "type kept after a failed announce")

	_, err = conn.RegisterDevice("p/d")
	require.NoError(t, err)
	_, err = conn.RegisterMessageType("devtree.report.pose")
	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "RegisterSender", 2)
	m.AssertNumberOfCalls(t, "RegisterMessageType", 2)
}

func TestAnyHandles(t *testing.T) {
	assert.True(t, AnySender.IsAny())
	assert.True(t, AnyMessageType.IsAny())
	assert.True(t, AnyRawMessageType.Matches(NewRawMessageType(3)))
	assert.False(t, NewRawMessageType(2).Matches(NewRawMessageType(3)))
	assert.True(t, AnySender.Matches(NewSenderType(1)))

	_, ok := AnySender.ID()
	assert.False(t, ok)
}

func TestRegisterDevice(t *testing.T) {
	conn, m, _ := newMockConnection(t)

	dev, err := conn.RegisterDevice("demo/tracker", "demo/tracker_alt")
	require.NoError(t, err)
	assert.Equal(t, "demo/tracker", dev.Name())
	assert.Len(t, dev.Senders(), 2)
	assert.NotEqual(t, dev.Senders()[0], dev.Senders()[1])
	m.AssertCalled(t, "RegisterSender", uint32(0), "demo/tracker")
	m.AssertCalled(t, "RegisterSender", uint32(1), "demo/tracker_alt")

	_, err = conn.RegisterDevice()
	assert.ErrorIs(t, err, ErrNoDeviceName)
	_, err = conn.RegisterDevice("ok", "")
	assert.ErrorIs(t, err, ErrNoDeviceName)
}

func TestSetOwnerTwicePanics(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())
	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)

	dev.SetOwner("token")
	assert.Equal(t, "token", dev.Owner())
	assert.Panics(t, func() { dev.SetOwner("other") })
}

func TestSendWithoutLockPanics(t *testing.T) {
	conn, m, _ := newMockConnection(t)
	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	mt, err := conn.RegisterMessageType("devtree.report.button")
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = dev.SendData(conn.Guard(), mt, time.Now(), []byte{1})
	})
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendWithForeignGuardPanics(t *testing.T) {
	conn, m, _ := newMockConnection(t)
	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	mt, err := conn.RegisterMessageType("devtree.report.button")
	require.NoError(t, err)

	other := NewLocalConnection(DefaultConfig())
	defer other.Close()
	g := other.Guard()
	require.True(t, g.Lock())
	defer g.Release()

	assert.Panics(t, func() {
		_ = dev.SendData(g, mt, time.Now(), []byte{1})
	})
	assert.Panics(t, func() {
		_ = dev.SendData(&recordingGuard{inner: g, calls: &[]string{}}, mt, time.Now(), []byte{1})
	})
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendOnlyAfterSuccessfulLock(t *testing.T) {
	conn, m, calls := newMockConnection(t)
	m.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("Close").Return(nil)

	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	mt, err := conn.RegisterMessageType("devtree.report.button")
	require.NoError(t, err)

	sent, err := dev.SendGuarded(&recordingGuard{inner: conn.Guard(), calls: calls}, mt, time.Now(), []byte{1})
	require.NoError(t, err)
	assert.True(t, sent)

	require.NoError(t, conn.Close())

	sent, err = dev.SendGuarded(&recordingGuard{inner: conn.Guard(), calls: calls}, mt, time.Now(), []byte{2})
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Equal(t, []string{"lock:true", "send", "lock:false"}, *calls)
	m.AssertNumberOfCalls(t, "Send", 1)
	m.AssertCalled(t, "Send", dev.Sender(), mt.Raw(), mock.Anything, []byte{1})
}

func TestGuardExclusive(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())

	g1 := conn.Guard()
	require.True(t, g1.Lock())
	assert.True(t, g1.Lock(), "relocking a held guard")

	acquired := make(chan struct{})
	go func() {
		g2 := conn.Guard()
		if g2.Lock() {
			g2.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second guard locked while first held")
	case <-time.After(20 * time.Millisecond):
	}
	g1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second guard never locked")
	}
}

func TestProcessRunsHooksInOrder(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())

	var order []string
	window, err := conn.RegisterDevice("p/window")
	require.NoError(t, err)
	window.SetSendWindowHook(func() { order = append(order, "window") })
	for _, name := range []string{"a", "b"} {
		dev, err := conn.RegisterDevice("p/" + name)
		require.NoError(t, err)
		dev.SetProcessHook(func() { order = append(order, name) })
	}
	conn.AddProcessHook(func() { order = append(order, "extra") })

	require.NoError(t, conn.Process())
	require.NoError(t, conn.Process())
	assert.Equal(t, []string{"a", "b", "window", "extra", "a", "b", "window", "extra"}, order)
}

func TestLoopbackSubscription(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())

	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	mt, err := conn.RegisterMessageType("devtree.report.button")
	require.NoError(t, err)
	require.NoError(t, conn.SendTree([]byte{0xA0}))

	// A late subscriber gets names and tree first.
	sub, err := conn.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	ts := time.Unix(5, 0)
	sent, err := dev.SendGuarded(conn.Guard(), mt, ts, []byte{0xF5})
	require.NoError(t, err)
	require.True(t, sent)

	envs, err := sub.Poll()
	require.NoError(t, err)
	require.Len(t, envs, 4)
	assert.Equal(t, wire.KindSenderName, envs[0].Kind)
	assert.Equal(t, "p/d", envs[0].Name)
	assert.Equal(t, wire.KindTypeName, envs[1].Kind)
	assert.Equal(t, wire.KindTree, envs[2].Kind)
	assert.Equal(t, wire.KindData, envs[3].Kind)
	assert.True(t, envs[3].Time().Equal(ts))

	envs, err = sub.Poll()
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestLoopbackHandlers(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())
	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	button, _ := conn.RegisterMessageType("devtree.report.button")
	analog, _ := conn.RegisterMessageType("devtree.report.analog")

	var got []RawMessageType
	conn.RegisterHandler(dev.Sender(), button.Raw(), func(_ SenderType, mt RawMessageType, _ time.Time, _ []byte) {
		got = append(got, mt)
	})
	var all int
	conn.RegisterHandler(AnySender, AnyRawMessageType, func(SenderType, RawMessageType, time.Time, []byte) {
		all++
	})

	dev.SendGuarded(conn.Guard(), button, time.Now(), []byte{1})
	dev.SendGuarded(conn.Guard(), analog, time.Now(), []byte{2})
	assert.Empty(t, got, "handlers run on Process")

	require.NoError(t, conn.Process())
	assert.Equal(t, []RawMessageType{button.Raw()}, got)
	assert.Equal(t, 2, all)
}

func TestCloseStopsEverything(t *testing.T) {
	conn := NewLocalConnection(DefaultConfig())
	sub, err := conn.Subscribe()
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.False(t, conn.Guard().Lock())
	assert.ErrorIs(t, conn.Process(), ErrConnectionClosed)
	_, err = conn.RegisterDevice("p/d")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = sub.Poll()
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestSharedGreetsLateClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultSharedConfig()
	cfg.Address = "127.0.0.1:0"
	conn, err := NewSharedConnection(ctx, cfg, DefaultConfig())
	require.NoError(t, err)
	defer conn.Close()

	dev, err := conn.RegisterDevice("p/d")
	require.NoError(t, err)
	mt, err := conn.RegisterMessageType("devtree.report.pose")
	require.NoError(t, err)
	require.NoError(t, conn.SendTree([]byte{0xA0}))

	shared := conn.Transport().(*Shared)
	c, err := transport.Dial(ctx, shared.Addr().String(), transport.DialConfig{})
	require.NoError(t, err)
	defer c.Close()

	var kinds []wire.Kind
	for range 3 {
		env, err := c.Receive(2 * time.Second)
		require.NoError(t, err)
		kinds = append(kinds, env.Kind)
	}
	assert.Equal(t, []wire.Kind{wire.KindSenderName, wire.KindTypeName, wire.KindTree}, kinds)

	// Data after the greeting reaches the client.
	require.Eventually(t, func() bool { return shared.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	_, err = dev.SendGuarded(conn.Guard(), mt, time.Unix(1, 0), []byte{0xF6})
	require.NoError(t, err)

	env, err := c.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.KindData, env.Kind)
	sid, _ := dev.Sender().ID()
	assert.Equal(t, sid, env.Sender)
}

func TestSharedDroppedClientDoesNotFailRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultSharedConfig()
	cfg.Address = "127.0.0.1:0"
	conn, err := NewSharedConnection(ctx, cfg, DefaultConfig())
	require.NoError(t, err)
	defer conn.Close()
	shared := conn.Transport().(*Shared)

	nc, err := net.Dial("tcp", shared.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return shared.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	nc.(*net.TCPConn).SetLinger(0)
	nc.Close()

	for i := range 20 {
		_, err := conn.RegisterMessageType(fmt.Sprintf("devtree.test.%d", i))
		require.NoError(t, err)
		_, err = conn.RegisterDevice(fmt.Sprintf("p/d%d", i))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return shared.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSharedTreeNeverGoesBackwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultSharedConfig()
	cfg.Address = "127.0.0.1:0"
	conn, err := NewSharedConnection(ctx, cfg, DefaultConfig())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SendTree([]byte{0}))
	shared := conn.Transport().(*Shared)

	const last = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= last; i++ {
			conn.SendTree([]byte{byte(i)})
		}
	}()
	c, err := transport.Dial(ctx, shared.Addr().String(), transport.DialConfig{})
	require.NoError(t, err)
	defer c.Close()
	<-done

	seen := -1
	for seen != last {
		env, err := c.Receive(2 * time.Second)
		require.NoError(t, err)
		if env.Kind != wire.KindTree {
			continue
		}
		got := int(env.Payload[0])
		require.GreaterOrEqual(t, got, seen, "tree went backwards")
		seen = got
	}
}
