package client

import (
	"errors"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/alias"
	"github.com/devtree-io/devtree-go/pkg/descriptor"
	"github.com/devtree-io/devtree-go/pkg/report"
)

// ErrNoState is returned by state queries before a report of the kind has
// arrived.
var ErrNoState = errors.New("no state yet")

// Callback receives a report delivered to an Interface.
type Callback func(ts time.Time, r report.Report, userdata any)

type callbackEntry struct {
	fn       Callback
	userdata any
}

type stateEntry struct {
	report report.Report
	ts     time.Time
}

// Interface is an application's handle on one path.
type Interface struct {
	ctx  *Context
	path string

	mu        sync.Mutex
	binding   *alias.OriginalSource
	kinds     map[report.Kind]struct{} // nil accepts every kind
	callbacks map[report.Kind][]callbackEntry
	state     map[report.Kind]stateEntry
}

func newInterface(ctx *Context, path string) *Interface {
	return &Interface{
		ctx:       ctx,
		path:      path,
		callbacks: make(map[report.Kind][]callbackEntry),
		state:     make(map[report.Kind]stateEntry),
	}
}

// Path returns the path the interface was opened with.
func (i *Interface) Path() string { return i.path }

// Source returns what the path currently resolves to.
func (i *Interface) Source() (alias.OriginalSource, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.binding == nil {
		return alias.OriginalSource{}, false
	}
	return *i.binding, true
}

func (i *Interface) bind(src *alias.OriginalSource) {
	var kinds map[report.Kind]struct{}
	if src != nil && src.InterfaceName != "" {
		kinds = interfaceKinds(src.InterfaceName)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.binding = src
	i.kinds = kinds
}

// interfaceKinds returns the kinds a bound interface receives. A composite
// interface also receives the kinds of the interfaces it implies.
func interfaceKinds(name string) map[report.Kind]struct{} {
	kinds := make(map[report.Kind]struct{})
	for _, n := range append([]string{name}, descriptor.Implied(name)...) {
		for _, k := range report.InterfaceKinds(n) {
			kinds[k] = struct{}{}
		}
	}
	return kinds
}

// RegisterCallback appends fn to the callbacks for kind. Callbacks run in
// registration order from Context.Update.
func (i *Interface) RegisterCallback(kind report.Kind, fn Callback, userdata any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks[kind] = append(i.callbacks[kind], callbackEntry{fn: fn, userdata: userdata})
}

// Register adds a callback typed to the report it receives.
func Register[T report.Report](i *Interface, fn func(ts time.Time, r T, userdata any), userdata any) {
	var zero T
	i.RegisterCallback(zero.Kind(), func(ts time.Time, r report.Report, ud any) {
		if typed, ok := r.(T); ok {
			fn(ts, typed, ud)
		}
	}, userdata)
}

func (i *Interface) RegisterPoseCallback(fn func(ts time.Time, r report.Pose, userdata any), userdata any) {
	Register(i, fn, userdata)
}

func (i *Interface) RegisterPositionCallback(fn func(ts time.Time, r report.Position, userdata any), userdata any) {
	Register(i, fn, userdata)
}

func (i *Interface) RegisterOrientationCallback(fn func(ts time.Time, r report.Orientation, userdata any), userdata any) {
	Register(i, fn, userdata)
}

func (i *Interface) RegisterButtonCallback(fn func(ts time.Time, r report.Button, userdata any), userdata any) {
	Register(i, fn, userdata)
}

func (i *Interface) RegisterAnalogCallback(fn func(ts time.Time, r report.Analog, userdata any), userdata any) {
	Register(i, fn, userdata)
}

// State returns the last report of kind and its timestamp. Imaging reports
// are never kept.
func (i *Interface) State(kind report.Kind) (report.Report, time.Time, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.state[kind]
	return s.report, s.ts, ok
}

// StateOf is State typed to a report struct.
func StateOf[T report.Report](i *Interface) (T, time.Time, error) {
	var zero T
	r, ts, ok := i.State(zero.Kind())
	if !ok {
		return zero, time.Time{}, ErrNoState
	}
	typed, ok := r.(T)
	if !ok {
		return zero, time.Time{}, ErrNoState
	}
	return typed, ts, nil
}

func (i *Interface) GetPoseState() (report.Pose, time.Time, error) {
	return StateOf[report.Pose](i)
}

func (i *Interface) GetPositionState() (report.Position, time.Time, error) {
	return StateOf[report.Position](i)
}

func (i *Interface) GetOrientationState() (report.Orientation, time.Time, error) {
	return StateOf[report.Orientation](i)
}

func (i *Interface) GetButtonState() (report.Button, time.Time, error) {
	return StateOf[report.Button](i)
}

func (i *Interface) GetAnalogState() (report.Analog, time.Time, error) {
	return StateOf[report.Analog](i)
}

func (i *Interface) GetDirectionState() (report.Direction, time.Time, error) {
	return StateOf[report.Direction](i)
}

func (i *Interface) GetLocation2DState() (report.Location2D, time.Time, error) {
	return StateOf[report.Location2D](i)
}

// accepts reports whether a report of kind from device reaches this
// interface.
func (i *Interface) accepts(device string, kind report.Kind, sensor int) (alias.OriginalSource, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.binding == nil || i.binding.DeviceName != device {
		return alias.OriginalSource{}, false
	}
	if _, ok := i.kinds[kind]; i.kinds != nil && !ok {
		return alias.OriginalSource{}, false
	}
	if i.binding.HasSensor && i.binding.Sensor != sensor {
		return alias.OriginalSource{}, false
	}
	return *i.binding, true
}

// deliver caches r and returns the callbacks to run.
func (i *Interface) deliver(ts time.Time, r report.Report) []callbackEntry {
	i.mu.Lock()
	defer i.mu.Unlock()
	if r.Kind().KeepsState() {
		i.state[r.Kind()] = stateEntry{report: r, ts: ts}
	}
	return append([]callbackEntry(nil), i.callbacks[r.Kind()]...)
}

func (i *Interface) drop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.binding = nil
	i.kinds = nil
	i.callbacks = make(map[report.Kind][]callbackEntry)
	i.state = make(map[report.Kind]stateEntry)
}

// applyTransform applies the alias chain's transform to spatial reports.
func applyTransform(t alias.Transform, r report.Report) report.Report {
	if t.IsIdentity() {
		return r
	}
	switch v := r.(type) {
	case report.Pose:
		v.Pose = t.ApplyToPose(v.Pose)
		return v
	case report.Position:
		v.Position = t.ApplyToPosition(v.Position)
		return v
	case report.Orientation:
		v.Rotation = t.ApplyToOrientation(v.Rotation)
		return v
	default:
		return r
	}
}
