package examples

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devtree-io/devtree-go/pkg/config"
	"github.com/devtree-io/devtree-go/pkg/devicetoken"
	"github.com/devtree-io/devtree-go/pkg/plugin"
	"github.com/devtree-io/devtree-go/pkg/report"
)

// PluginName is the name the demo plugin registers under.
const PluginName = "demo"

const trackerDescriptor = `{
	"deviceVendor": "devtree",
	"deviceName": "Demo Tracker",
	"interfaces": {"tracker": {"count": 2}},
	"semantic": {
		"head": "tracker/0",
		"hand": "tracker/1"
	},
	"automaticAliases": [
		{"path": "/me/head", "source": "semantic/head"},
		{"path": "/me/hands/right", "source": "semantic/hand"}
	]
}`

const buttonDescriptor = `{
	"deviceVendor": "devtree",
	"deviceName": "Demo Button",
	"interfaces": {"button": {"count": 1}},
	"automaticAliases": [
		{"path": "/me/trigger", "source": "button/0"}
	]
}`

const dialDescriptor = `{
	"deviceVendor": "devtree",
	"deviceName": "Demo Dial",
	"interfaces": {"analog": {"count": 1}}
}`

// Params configures the demo plugin.
type Params struct {
	// Radius of the tracker circle in meters.
	Radius float64 `json:"radius"`

	// Period of one tracker revolution.
	Period config.Duration `json:"period"`

	// ButtonPeriod is the time between button toggles.
	ButtonPeriod config.Duration `json:"buttonPeriod"`
}

func DefaultParams() Params {
	return Params{
		Radius:       0.5,
		Period:       config.Duration(4 * time.Second),
		ButtonPeriod: config.Duration(500 * time.Millisecond),
	}
}

func init() {
	plugin.Register(PluginName, Load)
}

// Load is the demo plugin's entry point.
func Load(ctx *plugin.RegistrationContext, raw json.RawMessage) error {
	params := DefaultParams()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return fmt.Errorf("params: %w", err)
		}
	}
	if params.Period <= 0 || params.ButtonPeriod <= 0 {
		return fmt.Errorf("params: periods must be positive")
	}

	tracker := &Tracker{radius: params.Radius, period: params.Period.Std(), start: time.Now()}
	tok, err := ctx.NewSyncDevice("tracker", []byte(trackerDescriptor), tracker.update)
	if err != nil {
		return err
	}
	tracker.token = tok

	button := &Button{period: params.ButtonPeriod.Std()}
	btok, err := ctx.NewAsyncDevice("button", []byte(buttonDescriptor), button.wait)
	if err != nil {
		return err
	}
	button.setToken(btok)

	var once sync.Once
	ctx.AddHardwareDetectCallback(func(ctx *plugin.RegistrationContext) error {
		var err error
		once.Do(func() {
			dial := &Dial{}
			var dtok *devicetoken.SyncDeviceToken
			dtok, err = ctx.NewSyncDevice("dial", []byte(dialDescriptor), dial.update)
			if err == nil {
				dial.token.Store(dtok)
				ctx.Logger().Info("dial attached")
			}
		})
		return err
	})

	ctx.Logger().Debug("demo devices registered", "radius", params.Radius, "period", params.Period)
	return nil
}

// Tracker moves sensor 0 on a horizontal circle and keeps sensor 1 at a
// fixed offset from it.
type Tracker struct {
	token  *devicetoken.SyncDeviceToken
	radius float64
	period time.Duration
	start  time.Time
	now    func() time.Time
}

// Poses returns both sensor poses at t.
func (tr *Tracker) Poses(t time.Time) [2]report.Pose {
	phase := 2 * math.Pi * float64(t.Sub(tr.start)) / float64(tr.period)
	head := report.IdentityPose()
	head.Translation = report.Vec3{X: tr.radius * math.Cos(phase), Y: 1.7, Z: tr.radius * math.Sin(phase)}
	head.Rotation = report.QuaternionFromAxisAngle(report.Vec3{Y: 1}, -phase)

	hand := head
	hand.Translation = head.Translation.Add(report.Vec3{X: 0.3, Y: -0.4})
	return [2]report.Pose{{Sensor: 0, Pose: head}, {Sensor: 1, Pose: hand}}
}

func (tr *Tracker) update() error {
	now := time.Now()
	if tr.now != nil {
		now = tr.now()
	}
	for _, p := range tr.Poses(now) {
		if err := tr.token.SendReport(p, now); err != nil {
			return err
		}
	}
	return nil
}

// Button toggles its state every period from its own worker.
type Button struct {
	period time.Duration

	mu      sync.Mutex
	token   *devicetoken.AsyncDeviceToken
	pressed bool
}

func (b *Button) setToken(t *devicetoken.AsyncDeviceToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = t
}

func (b *Button) wait(ctx context.Context) error {
	timer := time.NewTimer(b.period)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	b.mu.Lock()
	tok := b.token
	b.pressed = !b.pressed
	state := report.ButtonNotPressed
	if b.pressed {
		state = report.ButtonPressed
	}
	b.mu.Unlock()
	if tok == nil {
		return nil
	}
	return tok.SendReport(report.Button{Sensor: 0, State: state}, time.Now())
}

// Dial reports a slowly rising analog value.
type Dial struct {
	token atomic.Pointer[devicetoken.SyncDeviceToken]
	value float64
}

func (d *Dial) update() error {
	tok := d.token.Load()
	if tok == nil {
		return nil
	}
	d.value = math.Mod(d.value+0.001, 1)
	return tok.SendReport(report.Analog{Sensor: 0, Value: d.value}, time.Now())
}
