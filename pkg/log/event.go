package log

import (
	"fmt"
	"time"
)

// Event is one routing event. Exactly one of the payload pointers is set.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	Role         Role      `cbor:"6,keyasint,omitempty"`
	RemoteAddr   string    `cbor:"7,keyasint,omitempty"`

	// Device is the sender name ("plugin/device") the event concerns.
	Device string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Tree        *TreeEvent        `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction of data flow relative to the logging endpoint.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer that captured an event.
type Layer uint8

const (
	// LayerTransport sees raw frames.
	LayerTransport Layer = iota
	// LayerWire sees decoded envelopes.
	LayerWire
	// LayerRouting sees path tree, registry and device token activity.
	LayerRouting
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerRouting:
		return "ROUTING"
	default:
		return "UNKNOWN"
	}
}

// Category classifies events.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryTree
	CategoryError
)

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryTree:
		return "TREE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role of the logging endpoint.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 256

// FrameEvent records a raw frame.
type FrameEvent struct {
	// Size is the frame size including the length prefix.
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent captures a frame, keeping at most MaxFrameData bytes.
func NewFrameEvent(size int, data []byte) *FrameEvent {
	fe := &FrameEvent{Size: size}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent records a decoded envelope.
type MessageEvent struct {
	// Kind is the envelope kind name.
	Kind     string `cbor:"1,keyasint"`
	SenderID uint32 `cbor:"2,keyasint"`
	TypeID   uint32 `cbor:"3,keyasint"`

	// TypeName is the registered message type name, when known.
	TypeName string `cbor:"4,keyasint,omitempty"`

	// SourceTime is the timestamp the sender attached to the data.
	SourceTime  time.Time `cbor:"5,keyasint"`
	PayloadSize int       `cbor:"6,keyasint"`
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntityDeviceToken
	StateEntityServer
	StateEntityPlugin
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDeviceToken:
		return "DEVICE_TOKEN"
	case StateEntityServer:
		return "SERVER"
	case StateEntityPlugin:
		return "PLUGIN"
	default:
		return "UNKNOWN"
	}
}

// TreeEvent records a path tree update.
type TreeEvent struct {
	// Nodes is the node count after the update.
	Nodes    int      `cbor:"1,keyasint"`
	Changed  bool     `cbor:"2,keyasint"`
	BadPaths []string `cbor:"3,keyasint,omitempty"`

	// Reason names what triggered the update, e.g. "descriptor".
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData records an error.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context names the operation that failed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// NewErrorEvent builds an error event for err.
func NewErrorEvent(connID string, layer Layer, err error, context string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}

// Summary renders a one-line description of the event payload.
func (e Event) Summary() string {
	switch {
	case e.Frame != nil:
		return fmt.Sprintf("frame %d bytes", e.Frame.Size)
	case e.Message != nil:
		return fmt.Sprintf("%s sender=%d type=%d %d bytes", e.Message.Kind, e.Message.SenderID, e.Message.TypeID, e.Message.PayloadSize)
	case e.StateChange != nil:
		return fmt.Sprintf("%s %s -> %s", e.StateChange.Entity, e.StateChange.OldState, e.StateChange.NewState)
	case e.Tree != nil:
		return fmt.Sprintf("tree %d nodes changed=%t bad=%d", e.Tree.Nodes, e.Tree.Changed, len(e.Tree.BadPaths))
	case e.Error != nil:
		return "error: " + e.Error.Message
	default:
		return e.Category.String()
	}
}
