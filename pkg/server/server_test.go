package server

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtree-io/devtree-go/pkg/client"
	"github.com/devtree-io/devtree-go/pkg/config"
	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/devicetoken"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/devtree-io/devtree-go/pkg/persistence"
	"github.com/devtree-io/devtree-go/pkg/plugin"
	"github.com/devtree-io/devtree-go/pkg/report"
)

const trackerDescriptor = `{"interfaces": {"tracker": {"count": 2}}}`

// phase tracks whether the sync device already ran in the current tick.
var syncRanThisTick atomic.Bool

func init() {
	plugin.Register("servertest-tracker", func(ctx *plugin.RegistrationContext, params json.RawMessage) error {
		var p struct {
			X float64 `json:"x"`
		}
		if params != nil {
			if err := json.Unmarshal(params, &p); err != nil {
				return err
			}
		}
		var tok *devicetoken.SyncDeviceToken
		tok, err := ctx.NewSyncDevice("tracker", []byte(trackerDescriptor), func() error {
			syncRanThisTick.Store(true)
			pose := report.Pose{Sensor: 0, Pose: report.IdentityPose()}
			pose.Pose.Translation.X = p.X
			return tok.SendReport(pose, time.Unix(100, 0))
		})
		if err != nil {
			return err
		}
		ctx.AddHardwareDetectCallback(func(ctx *plugin.RegistrationContext) error {
			_, err := ctx.NewSyncDevice("hotplug", []byte(`{"interfaces": {"button": {}}}`), nil)
			return err
		})
		return nil
	})

	plugin.Register("servertest-button", func(ctx *plugin.RegistrationContext, _ json.RawMessage) error {
		var tok *devicetoken.AsyncDeviceToken
		tok, err := ctx.NewAsyncDevice("button", []byte(`{"interfaces": {"button": {}}}`), func(wctx context.Context) error {
			select {
			case <-wctx.Done():
				return wctx.Err()
			case <-time.After(time.Millisecond):
			}
			return tok.SendReport(report.Button{State: report.ButtonPressed}, time.Now())
		})
		return err
	})

	plugin.Register("servertest-broken", func(*plugin.RegistrationContext, json.RawMessage) error {
		return errors.New("no hardware")
	})
}

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
	return s
}

func localClient(t *testing.T, s *Server) *client.Context {
	t.Helper()
	sub, err := s.Connection().Subscribe()
	require.NoError(t, err)
	ctx := client.NewContext("test.app", sub, client.DefaultContextConfig())
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestLifecycle(t *testing.T) {
	s := New(DefaultServerConfig())
	assert.Equal(t, StateIdle, s.State())
	assert.ErrorIs(t, s.Update(), ErrNotStarted)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, s.Stop(), ErrNotStarted)
}

func TestStartFailsOnBrokenPlugin(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker"}, {Name: "servertest-broken"}}
	s := New(cfg)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hardware")
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.Connection().Closing())
}

func TestStartReportsBadPaths(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker"}}
	cfg.Aliases = map[string]string{
		"/me/head":  "/servertest-tracker/tracker/tracker/0",
		"/me/ghost": "/nowhere/device/tracker/0",
	}
	s := startServer(t, cfg)

	assert.Equal(t, []string{"/me/ghost"}, s.BadPaths())

	src, ok := s.Resolve("/me/head")
	require.True(t, ok)
	assert.Equal(t, "servertest-tracker/tracker", src.DeviceName)

	var configured []string
	for _, a := range s.Aliases() {
		if !a.Automatic {
			configured = append(configured, a.Path)
		}
	}
	assert.ElementsMatch(t, []string{"/me/head", "/me/ghost"}, configured)
}

func TestReportsReachClientThroughAlias(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker", Params: map[string]any{"x": 4}}}
	cfg.Aliases = map[string]string{"/me/head": `{"source": "/servertest-tracker/tracker/tracker/0", "translate": [0, 0, 1]}`}
	s := startServer(t, cfg)

	ctx := localClient(t, s)
	iface, err := ctx.GetInterface("/me/head")
	require.NoError(t, err)

	require.NoError(t, s.Update())
	require.NoError(t, ctx.Update())

	pose, ts, err := iface.GetPoseState()
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Unix(100, 0)))
	assert.InDelta(t, 4, pose.Pose.Translation.X, 1e-9)
	assert.InDelta(t, 1, pose.Pose.Translation.Z, 1e-9)
}

func TestSyncDevicesRunBeforeSendWindows(t *testing.T) {
	var early atomic.Int32
	cfg := DefaultServerConfig()
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-button"}, {Name: "servertest-tracker"}}
	cfg.Token.OnSend = func(device string, _ connection.MessageType, _ time.Time, _ []byte) {
		if device == "servertest-button/button" && !syncRanThisTick.Load() {
			early.Add(1)
		}
	}
	s := startServer(t, cfg)
	s.Connection().AddProcessHook(func() { syncRanThisTick.Store(false) })

	ctx := localClient(t, s)
	button, err := ctx.GetInterface("/servertest-button/button/button")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, s.Update())
		require.NoError(t, ctx.Update())
		if _, _, err := button.GetButtonState(); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_, _, err = button.GetButtonState()
	require.NoError(t, err, "async button never delivered")
	assert.Zero(t, early.Load(), "async device sent before the sync device ran in the same tick")
}

func TestHardwareDetectPublishesNewDevice(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker"}}
	s := startServer(t, cfg)
	ctx := localClient(t, s)

	require.NoError(t, ctx.Update())
	_, ok := ctx.Tree().FindNodeByPath("/servertest-tracker/hotplug")
	assert.False(t, ok)

	require.NoError(t, s.TriggerHardwareDetect())
	require.NoError(t, s.Update())
	require.NoError(t, ctx.Update())

	n, ok := ctx.Tree().FindNodeByPath("/servertest-tracker/hotplug")
	require.True(t, ok)
	assert.Equal(t, pathtree.KindDevice, n.Kind())
}

func TestAddAliases(t *testing.T) {
	s := startServer(t, DefaultServerConfig())
	require.NoError(t, s.AddExternalDevice("/remote/glove", "10.0.0.7", 3883, []byte(trackerDescriptor)))

	err := s.AddAliases([]byte(`{
		// left hand
		"/me/hands/left": "/remote/glove/tracker/0",
		"/me/hands/right": {"source": "/remote/glove/tracker/1", "rotate": {"axis": "z", "degrees": 180}},
	}`))
	require.NoError(t, err)
	require.NoError(t, s.Update())
	assert.Empty(t, s.BadPaths())

	src, ok := s.Resolve("/me/hands/right")
	require.True(t, ok)
	assert.Equal(t, "/remote/glove/tracker/1", src.Path)
	assert.False(t, src.Transform.IsIdentity())

	dev, ok := s.Tree().FindNodeByPath("/remote/glove")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.7", dev.Element().(pathtree.DeviceElement).Host)

	_, err = s.AddAlias("/me/bad", `{"source": `)
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Error(t, s.AddExternalDevice("remote/x", "", 0, []byte(trackerDescriptor)))
}

func TestSharedServerRemoteClient(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Transport = config.TransportShared
	cfg.Listen = "127.0.0.1:0"
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker"}}
	s := startServer(t, cfg)
	require.NotZero(t, s.Port())

	bg, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(bg)

	rc := client.DefaultRemoteConfig()
	rc.Address = s.shared.Addr().String()
	ctx := client.NewContext("remote.app", client.NewRemote(bg, rc), client.DefaultContextConfig())
	defer ctx.Close()

	wctx, wcancel := context.WithTimeout(bg, 2*time.Second)
	defer wcancel()
	require.NoError(t, ctx.WaitForTree(wctx))

	iface, err := ctx.GetInterface("/servertest-tracker/tracker/tracker/0")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		ctx.Update()
		_, _, err := iface.GetPoseState()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfigFrom(t *testing.T) {
	file, err := config.Parse([]byte(`
name: lab
transport: local
tickInterval: 1ms
aliases:
  /me/head: /a/b/tracker/0
  /me/hand: {source: /a/b/tracker/1, translate: [1, 0, 0]}
`), config.FormatYAML)
	require.NoError(t, err)

	sc, err := ConfigFrom(file)
	require.NoError(t, err)
	assert.Equal(t, "lab", sc.Name)
	assert.Equal(t, time.Millisecond, sc.TickInterval)
	assert.Equal(t, "/a/b/tracker/0", sc.Aliases["/me/head"])
	assert.JSONEq(t, `{"source": "/a/b/tracker/1", "translate": [1, 0, 0]}`, sc.Aliases["/me/hand"])
}

func TestRuntimeAliasesSurviveRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := DefaultServerConfig()
	cfg.StateFile = statePath
	cfg.Plugins = []config.PluginConfig{{Name: "servertest-tracker"}}

	s := New(cfg)
	require.NoError(t, s.Start(context.Background()))
	changed, err := s.AddRuntimeAlias("/me/saved", "/servertest-tracker/tracker/tracker/1")
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = s.AddRuntimeAlias("/me/broken", `{"source": `)
	assert.ErrorIs(t, err, ErrInvalidAlias)
	require.NoError(t, s.Stop())

	// An entry that now collides with a device node is skipped.
	store := persistence.NewStateStore(statePath)
	require.NoError(t, store.SetAlias("/servertest-tracker", "/me/saved"))

	s = startServer(t, cfg)
	src, ok := s.Resolve("/me/saved")
	require.True(t, ok)
	assert.Equal(t, "/servertest-tracker/tracker/tracker/1", src.Path)
	n, ok := s.Tree().FindNodeByPath("/servertest-tracker")
	require.True(t, ok)
	assert.Equal(t, pathtree.KindPlugin, n.Kind())
}

func TestCorruptStateFileFailsStart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{"), 0o600))

	cfg := DefaultServerConfig()
	cfg.StateFile = statePath
	s := New(cfg)
	assert.Error(t, s.Start(context.Background()))
	assert.Equal(t, StateIdle, s.State())
}
