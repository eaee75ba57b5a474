package wire

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies what an envelope carries.
type Kind uint8

const (
	// KindData carries a report payload from a sender.
	KindData Kind = 1

	// KindSenderName binds a sender id to its name.
	KindSenderName Kind = 2

	// KindTypeName binds a message type id to its name.
	KindTypeName Kind = 3

	// KindTree carries the serialized path tree.
	KindTree Kind = 4

	// KindPing requests a pong with the same sequence.
	KindPing Kind = 5

	// KindPong answers a ping.
	KindPong Kind = 6
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindSenderName:
		return "SENDER_NAME"
	case KindTypeName:
		return "TYPE_NAME"
	case KindTree:
		return "TREE"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k >= KindData && k <= KindPong
}

// Envelope errors.
var (
	ErrInvalidKind = errors.New("invalid envelope kind")
	ErrMissingName = errors.New("name registration without a name")
	ErrMissingTree = errors.New("tree envelope without payload")
)

// Envelope is the unit of transfer on a connection.
//
// CBOR encoding:
//
//	{
//	  1: kind,        // uint8
//	  2: sender,      // uint32 sender id
//	  3: type,        // uint32 message type id
//	  4: timestamp,   // int64 unix nanoseconds
//	  5: name,        // string, name registrations only
//	  6: payload,     // bytes
//	  7: sequence     // uint32, ping/pong only
//	}
type Envelope struct {
	Kind      Kind   `cbor:"1,keyasint"`
	Sender    uint32 `cbor:"2,keyasint,omitempty"`
	Type      uint32 `cbor:"3,keyasint,omitempty"`
	Timestamp int64  `cbor:"4,keyasint,omitempty"`
	Name      string `cbor:"5,keyasint,omitempty"`
	Payload   []byte `cbor:"6,keyasint,omitempty"`
	Sequence  uint32 `cbor:"7,keyasint,omitempty"`
}

// Validate checks that the fields required by the kind are present.
func (e *Envelope) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, e.Kind)
	}
	switch e.Kind {
	case KindSenderName, KindTypeName:
		if e.Name == "" {
			return ErrMissingName
		}
	case KindTree:
		if len(e.Payload) == 0 {
			return ErrMissingTree
		}
	}
	return nil
}

// Time returns the envelope timestamp.
func (e *Envelope) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// NewDataEnvelope builds a data envelope.
func NewDataEnvelope(sender, msgType uint32, ts time.Time, payload []byte) *Envelope {
	return &Envelope{
		Kind:      KindData,
		Sender:    sender,
		Type:      msgType,
		Timestamp: ts.UnixNano(),
		Payload:   payload,
	}
}

// NewSenderName builds a sender name registration.
func NewSenderName(id uint32, name string) *Envelope {
	return &Envelope{Kind: KindSenderName, Sender: id, Name: name}
}

// NewTypeName builds a message type name registration.
func NewTypeName(id uint32, name string) *Envelope {
	return &Envelope{Kind: KindTypeName, Type: id, Name: name}
}

// NewTreeEnvelope builds an envelope carrying a serialized path tree.
func NewTreeEnvelope(payload []byte) *Envelope {
	return &Envelope{Kind: KindTree, Payload: payload}
}

// NewPing builds a ping with the given sequence.
func NewPing(seq uint32) *Envelope {
	return &Envelope{Kind: KindPing, Sequence: seq}
}

// NewPong answers the ping with sequence seq.
func NewPong(seq uint32) *Envelope {
	return &Envelope{Kind: KindPong, Sequence: seq}
}
