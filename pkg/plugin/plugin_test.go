package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/descriptor"
	"github.com/devtree-io/devtree-go/pkg/devicetoken"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackerDescriptor = `{"interfaces": {"tracker": {"count": 2}}}`

type testHost struct {
	conn *connection.Connection
	tree *pathtree.Tree
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	conn := connection.NewLocalConnection(connection.DefaultConfig())
	t.Cleanup(func() { conn.Close() })
	return &testHost{conn: conn, tree: pathtree.New()}
}

func (h *testHost) Connection() *connection.Connection { return h.conn }

func (h *testHost) AddDeviceDescriptor(deviceName string, data []byte) error {
	_, err := descriptor.ProcessDeviceDescriptorForPathTree(h.tree, deviceName, data, 0, "")
	return err
}

func registerTemp(t *testing.T, name string, ep EntryPoint) {
	t.Helper()
	Register(name, ep)
	t.Cleanup(func() { unregister(name) })
}

func TestRegisterAndLookup(t *testing.T) {
	registerTemp(t, "lookup-test", func(*RegistrationContext, json.RawMessage) error { return nil })

	_, ok := Lookup("lookup-test")
	assert.True(t, ok)
	assert.Contains(t, Names(), "lookup-test")

	_, ok = Lookup("nope")
	assert.False(t, ok)

	assert.Panics(t, func() {
		Register("lookup-test", func(*RegistrationContext, json.RawMessage) error { return nil })
	})
	assert.Panics(t, func() { Register("", nil) })
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load(context.Background(), "missing", nil, newTestHost(t), Options{})
	assert.ErrorIs(t, err, ErrUnknownPlugin)
}

func TestLoadPassesParams(t *testing.T) {
	var got json.RawMessage
	registerTemp(t, "params-test", func(_ *RegistrationContext, params json.RawMessage) error {
		got = params
		return nil
	})

	rc, err := Load(context.Background(), "params-test", json.RawMessage(`{"rate":60}`), newTestHost(t), Options{})
	require.NoError(t, err)
	defer rc.Unload()

	assert.Equal(t, "params-test", rc.PluginName())
	assert.JSONEq(t, `{"rate":60}`, string(got))
}

func TestNewSyncDeviceCompilesDescriptor(t *testing.T) {
	host := newTestHost(t)
	rc := NewRegistrationContext(context.Background(), "demo", host, Options{Token: devicetoken.DefaultOptions()})
	defer rc.Unload()

	var updates int
	tok, err := rc.NewSyncDevice("tracker", []byte(trackerDescriptor), func() error {
		updates++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "demo/tracker", tok.Name())

	n, ok := host.tree.FindNodeByPath("/demo/tracker/tracker")
	require.True(t, ok)
	assert.Equal(t, pathtree.KindInterface, n.Kind())

	require.NoError(t, host.conn.Process())
	assert.Equal(t, 1, updates)
}

func TestNewDeviceRejectsBadInput(t *testing.T) {
	host := newTestHost(t)
	rc := NewRegistrationContext(context.Background(), "demo", host, Options{})
	defer rc.Unload()

	_, err := rc.NewSyncDevice("a/b", []byte(trackerDescriptor), nil)
	assert.ErrorIs(t, err, ErrInvalidDeviceName)

	_, err = rc.NewSyncDevice("tracker", []byte(`{"interfaces": `), nil)
	assert.Error(t, err)
	assert.Empty(t, rc.Tokens())
}

func TestUnloadStopsAsyncWorkers(t *testing.T) {
	host := newTestHost(t)
	rc := NewRegistrationContext(context.Background(), "demo", host, Options{Token: devicetoken.DefaultOptions()})

	var running atomic.Bool
	tok, err := rc.NewAsyncDevice("button", []byte(`{"interfaces": {"button": {}}}`), func(ctx context.Context) error {
		running.Store(true)
		<-ctx.Done()
		running.Store(false)
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, devicetoken.StateRunning, tok.State())

	rc.Unload()
	assert.Equal(t, devicetoken.StateStopped, tok.State())
	assert.False(t, running.Load(), "worker still inside wait callback after Unload")

	_, err = rc.NewSyncDevice("late", []byte(trackerDescriptor), nil)
	assert.ErrorIs(t, err, ErrUnloaded)
}

func TestFailedEntryPointUnloads(t *testing.T) {
	host := newTestHost(t)
	var created devicetoken.Token
	registerTemp(t, "broken", func(ctx *RegistrationContext, _ json.RawMessage) error {
		tok, err := ctx.NewSyncDevice("tracker", []byte(trackerDescriptor), nil)
		if err != nil {
			return err
		}
		created = tok
		return errors.New("no hardware")
	})

	_, err := Load(context.Background(), "broken", nil, host, Options{})
	require.Error(t, err)
	require.NotNil(t, created)
	assert.Equal(t, devicetoken.StateStopped, created.State())
}

func TestHardwareDetect(t *testing.T) {
	rc := NewRegistrationContext(context.Background(), "demo", newTestHost(t), Options{})

	var order []int
	rc.AddHardwareDetectCallback(func(*RegistrationContext) error {
		order = append(order, 1)
		return nil
	})
	errBus := errors.New("bus error")
	rc.AddHardwareDetectCallback(func(*RegistrationContext) error {
		order = append(order, 2)
		return errBus
	})

	assert.ErrorIs(t, rc.HardwareDetect(), errBus)
	assert.Equal(t, []int{1, 2}, order)

	rc.Unload()
	assert.ErrorIs(t, rc.HardwareDetect(), ErrUnloaded)
}
