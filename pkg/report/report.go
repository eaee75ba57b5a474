package report

import "fmt"

// Kind identifies a report type.
type Kind uint8

const (
	KindPose Kind = iota + 1
	KindPosition
	KindOrientation
	KindVelocity
	KindAcceleration
	KindButton
	KindAnalog
	KindImaging
	KindLocation2D
	KindDirection
	KindEyeTracker3DGaze
	KindEyeTrackerBlink
	KindNaviVelocity
	KindNaviPosition
	KindSkeleton
)

type kindInfo struct {
	name       string
	keepsState bool
}

var kinds = map[Kind]kindInfo{
	KindPose:             {"pose", true},
	KindPosition:         {"position", true},
	KindOrientation:      {"orientation", true},
	KindVelocity:         {"velocity", true},
	KindAcceleration:     {"acceleration", true},
	KindButton:           {"button", true},
	KindAnalog:           {"analog", true},
	KindImaging:          {"imaging", false}, // buffers are too large to retain
	KindLocation2D:       {"location2D", true},
	KindDirection:        {"direction", true},
	KindEyeTracker3DGaze: {"eyetracker3DGaze", true},
	KindEyeTrackerBlink:  {"eyetrackerBlink", true},
	KindNaviVelocity:     {"naviVelocity", true},
	KindNaviPosition:     {"naviPosition", true},
	KindSkeleton:         {"skeleton", true},
}

// MessagePrefix namespaces report message type names.
const MessagePrefix = "devtree.report."

// Kinds returns every known kind in numeric order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := KindPose; k <= KindSkeleton; k++ {
		out = append(out, k)
	}
	return out
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kinds[k]
	return ok
}

// String returns the kind name.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MessageName returns the message type name registered for this kind.
func (k Kind) MessageName() string {
	return MessagePrefix + k.String()
}

// KeepsState reports whether clients cache the last report of this kind.
func (k Kind) KeepsState() bool {
	return kinds[k].keepsState
}

// KindFromMessageName maps a registered message type name back to its kind.
func KindFromMessageName(name string) (Kind, bool) {
	for k, info := range kinds {
		if MessagePrefix+info.name == name {
			return k, true
		}
	}
	return 0, false
}

// interfaceKinds maps device interface names to the kinds they emit.
var interfaceKinds = map[string][]Kind{
	"tracker":    {KindPose, KindPosition, KindOrientation, KindVelocity, KindAcceleration},
	"button":     {KindButton},
	"analog":     {KindAnalog},
	"imaging":    {KindImaging},
	"location2D": {KindLocation2D},
	"direction":  {KindDirection},
	"eyetracker": {KindEyeTracker3DGaze, KindEyeTrackerBlink},
	"locomotion": {KindNaviVelocity, KindNaviPosition},
	"skeleton":   {KindSkeleton},
}

// InterfaceKinds returns the report kinds emitted by the interface name, or
// nil for an unknown name. Composite interfaces list only their own kinds.
func InterfaceKinds(name string) []Kind {
	return append([]Kind(nil), interfaceKinds[name]...)
}

// Report is implemented by every report type.
type Report interface {
	// Kind returns the report kind.
	Kind() Kind

	// SensorID returns the sensor number within the interface.
	SensorID() int
}

// Pose reports position and orientation.
type Pose struct {
	Sensor int       `cbor:"1,keyasint"`
	Pose   PoseState `cbor:"2,keyasint"`
}

// Position reports a position only.
type Position struct {
	Sensor   int  `cbor:"1,keyasint"`
	Position Vec3 `cbor:"2,keyasint"`
}

// Orientation reports an orientation only.
type Orientation struct {
	Sensor   int        `cbor:"1,keyasint"`
	Rotation Quaternion `cbor:"2,keyasint"`
}

// Velocity reports linear and angular velocity.
type Velocity struct {
	Sensor  int  `cbor:"1,keyasint"`
	Linear  Vec3 `cbor:"2,keyasint"`
	Angular Vec3 `cbor:"3,keyasint"`
}

// Acceleration reports linear and angular acceleration.
type Acceleration struct {
	Sensor  int  `cbor:"1,keyasint"`
	Linear  Vec3 `cbor:"2,keyasint"`
	Angular Vec3 `cbor:"3,keyasint"`
}

// Button states.
const (
	ButtonNotPressed uint8 = 0
	ButtonPressed    uint8 = 1
)

// Button reports a button state.
type Button struct {
	Sensor int   `cbor:"1,keyasint"`
	State  uint8 `cbor:"2,keyasint"`
}

// Analog reports a single analog channel value.
type Analog struct {
	Sensor int     `cbor:"1,keyasint"`
	Value  float64 `cbor:"2,keyasint"`
}

// ImagingMetadata describes an image buffer.
type ImagingMetadata struct {
	Width    int `cbor:"1,keyasint"`
	Height   int `cbor:"2,keyasint"`
	Channels int `cbor:"3,keyasint"`
	Depth    int `cbor:"4,keyasint"`
}

// Imaging reports an image frame. Imaging reports are never cached.
type Imaging struct {
	Sensor   int             `cbor:"1,keyasint"`
	Metadata ImagingMetadata `cbor:"2,keyasint"`
	Buffer   []byte          `cbor:"3,keyasint"`
}

// Location2D reports a normalized 2D location.
type Location2D struct {
	Sensor   int  `cbor:"1,keyasint"`
	Location Vec2 `cbor:"2,keyasint"`
}

// Direction reports a 3D direction vector.
type Direction struct {
	Sensor    int  `cbor:"1,keyasint"`
	Direction Vec3 `cbor:"2,keyasint"`
}

// EyeTracker3DGaze reports a gaze ray.
type EyeTracker3DGaze struct {
	Sensor    int  `cbor:"1,keyasint"`
	BasePoint Vec3 `cbor:"2,keyasint"`
	Direction Vec3 `cbor:"3,keyasint"`
}

// EyeTrackerBlink reports whether the eye is closed.
type EyeTrackerBlink struct {
	Sensor int  `cbor:"1,keyasint"`
	Blink  bool `cbor:"2,keyasint"`
}

// NaviVelocity reports a 2D navigation velocity.
type NaviVelocity struct {
	Sensor   int  `cbor:"1,keyasint"`
	Velocity Vec2 `cbor:"2,keyasint"`
}

// NaviPosition reports a 2D navigation position.
type NaviPosition struct {
	Sensor   int  `cbor:"1,keyasint"`
	Position Vec2 `cbor:"2,keyasint"`
}

// Skeleton reports the joint poses of a tracked skeleton.
type Skeleton struct {
	Sensor int         `cbor:"1,keyasint"`
	Joints []PoseState `cbor:"2,keyasint"`
}

func (Pose) Kind() Kind             { return KindPose }
func (Position) Kind() Kind         { return KindPosition }
func (Orientation) Kind() Kind      { return KindOrientation }
func (Velocity) Kind() Kind         { return KindVelocity }
func (Acceleration) Kind() Kind     { return KindAcceleration }
func (Button) Kind() Kind           { return KindButton }
func (Analog) Kind() Kind           { return KindAnalog }
func (Imaging) Kind() Kind          { return KindImaging }
func (Location2D) Kind() Kind       { return KindLocation2D }
func (Direction) Kind() Kind        { return KindDirection }
func (EyeTracker3DGaze) Kind() Kind { return KindEyeTracker3DGaze }
func (EyeTrackerBlink) Kind() Kind  { return KindEyeTrackerBlink }
func (NaviVelocity) Kind() Kind     { return KindNaviVelocity }
func (NaviPosition) Kind() Kind     { return KindNaviPosition }
func (Skeleton) Kind() Kind         { return KindSkeleton }

func (r Pose) SensorID() int             { return r.Sensor }
func (r Position) SensorID() int         { return r.Sensor }
func (r Orientation) SensorID() int      { return r.Sensor }
func (r Velocity) SensorID() int         { return r.Sensor }
func (r Acceleration) SensorID() int     { return r.Sensor }
func (r Button) SensorID() int           { return r.Sensor }
func (r Analog) SensorID() int           { return r.Sensor }
func (r Imaging) SensorID() int          { return r.Sensor }
func (r Location2D) SensorID() int       { return r.Sensor }
func (r Direction) SensorID() int        { return r.Sensor }
func (r EyeTracker3DGaze) SensorID() int { return r.Sensor }
func (r EyeTrackerBlink) SensorID() int  { return r.Sensor }
func (r NaviVelocity) SensorID() int     { return r.Sensor }
func (r NaviPosition) SensorID() int     { return r.Sensor }
func (r Skeleton) SensorID() int         { return r.Sensor }
