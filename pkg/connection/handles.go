package connection

import "fmt"

// RawMessageType is a transport-level message type id. The zero value is
// AnyRawMessageType, which matches every type in handler registration.
type RawMessageType struct {
	id    uint32
	valid bool
}

// AnyRawMessageType matches every message type.
var AnyRawMessageType = RawMessageType{}

// NewRawMessageType wraps a registered id.
func NewRawMessageType(id uint32) RawMessageType {
	return RawMessageType{id: id, valid: true}
}

// ID returns the id and whether the handle holds one.
func (t RawMessageType) ID() (uint32, bool) { return t.id, t.valid }

// IsAny reports whether t is the wildcard.
func (t RawMessageType) IsAny() bool { return !t.valid }

// Matches reports whether t, used as a filter, accepts other.
func (t RawMessageType) Matches(other RawMessageType) bool {
	return t.IsAny() || t == other
}

func (t RawMessageType) String() string {
	if !t.valid {
		return "any"
	}
	return fmt.Sprintf("type#%d", t.id)
}

// MessageType is a named message type registered with a Connection.
type MessageType struct {
	name string
	raw  RawMessageType
}

// AnyMessageType matches every message type.
var AnyMessageType = MessageType{}

// Name returns the registered name, or "" for AnyMessageType.
func (t MessageType) Name() string { return t.name }

// Raw returns the transport-level handle.
func (t MessageType) Raw() RawMessageType { return t.raw }

func (t MessageType) ID() (uint32, bool) { return t.raw.ID() }

func (t MessageType) IsAny() bool { return t.raw.IsAny() }

func (t MessageType) String() string {
	if t.IsAny() {
		return "any"
	}
	return t.name
}

// SenderType is a sender id. The zero value is AnySender.
type SenderType struct {
	id    uint32
	valid bool
}

// AnySender matches every sender.
var AnySender = SenderType{}

// NewSenderType wraps a registered id.
func NewSenderType(id uint32) SenderType {
	return SenderType{id: id, valid: true}
}

func (s SenderType) ID() (uint32, bool) { return s.id, s.valid }

func (s SenderType) IsAny() bool { return !s.valid }

// Matches reports whether s, used as a filter, accepts other.
func (s SenderType) Matches(other SenderType) bool {
	return s.IsAny() || s == other
}

func (s SenderType) String() string {
	if !s.valid {
		return "any"
	}
	return fmt.Sprintf("sender#%d", s.id)
}
