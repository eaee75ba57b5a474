package pathtree

import (
	"fmt"
	"strings"
)

// ElementKind identifies the kind of a node.
type ElementKind uint8

const (
	KindNull ElementKind = iota
	KindPlugin
	KindDevice
	KindInterface
	KindSensor
	KindPhysicalAssociation
	KindLogical
	KindAlias
)

var kindNames = [...]string{
	KindNull:                "NULL",
	KindPlugin:              "PLUGIN",
	KindDevice:              "DEVICE",
	KindInterface:           "INTERFACE",
	KindSensor:              "SENSOR",
	KindPhysicalAssociation: "PHYSICAL_ASSOCIATION",
	KindLogical:             "LOGICAL",
	KindAlias:               "ALIAS",
}

// String returns the kind name.
func (k ElementKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (k ElementKind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown element kind %d", k)
	}
	return []byte(strings.ToLower(k.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ElementKind) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range kindNames {
		if n == name {
			*k = ElementKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown element kind %q", text)
}

// Element is the payload of a node. The set of implementations is closed.
type Element interface {
	Kind() ElementKind
	isElement()
}

// NullElement is the placeholder for nodes whose kind is not yet known.
type NullElement struct{}

// PluginElement marks the node directly below the root that owns devices.
type PluginElement struct{}

// DeviceElement describes a device published by a plugin.
type DeviceElement struct {
	// DeviceName is the sender name, "plugin/device".
	DeviceName string `json:"deviceName" cbor:"1,keyasint"`

	// Host is the address of the connection serving the device.
	Host string `json:"host,omitempty" cbor:"2,keyasint,omitempty"`

	// Port is the listen port of the connection serving the device.
	Port int `json:"port,omitempty" cbor:"3,keyasint,omitempty"`
}

// InterfaceElement describes an interface exposed by a device.
type InterfaceElement struct {
	// Count is the number of sensors the interface carries.
	Count int `json:"count,omitempty" cbor:"1,keyasint,omitempty"`
}

// SensorElement describes one numbered sensor of an interface.
type SensorElement struct {
	Number int `json:"number" cbor:"1,keyasint"`
}

// PhysicalAssociationElement groups nodes that share a physical location.
type PhysicalAssociationElement struct{}

// LogicalElement groups nodes for organisational purposes only.
type LogicalElement struct{}

// AliasPriority orders competing alias assignments for the same node.
type AliasPriority uint8

const (
	// AliasPriorityMinimum never replaces an existing alias.
	AliasPriorityMinimum AliasPriority = iota
	// AliasPriorityAutomatic is used for aliases generated from descriptors.
	AliasPriorityAutomatic
	// AliasPrioritySemantic is used for semantic aliases declared by devices.
	AliasPrioritySemantic
	// AliasPriorityManual is used for aliases from the server configuration.
	AliasPriorityManual
)

// AliasElement redirects to another path, optionally through a transform.
type AliasElement struct {
	// Source is the alias specification (a path or a JSON object).
	Source string `json:"source" cbor:"1,keyasint"`

	// Priority decides whether a later assignment may replace this alias.
	Priority AliasPriority `json:"priority,omitempty" cbor:"2,keyasint,omitempty"`
}

// Automatic reports whether the alias was generated rather than configured.
func (a AliasElement) Automatic() bool {
	return a.Priority < AliasPriorityManual
}

func (NullElement) Kind() ElementKind                { return KindNull }
func (PluginElement) Kind() ElementKind              { return KindPlugin }
func (DeviceElement) Kind() ElementKind              { return KindDevice }
func (InterfaceElement) Kind() ElementKind           { return KindInterface }
func (SensorElement) Kind() ElementKind              { return KindSensor }
func (PhysicalAssociationElement) Kind() ElementKind { return KindPhysicalAssociation }
func (LogicalElement) Kind() ElementKind             { return KindLogical }
func (AliasElement) Kind() ElementKind               { return KindAlias }

func (NullElement) isElement()                {}
func (PluginElement) isElement()              {}
func (DeviceElement) isElement()              {}
func (InterfaceElement) isElement()           {}
func (SensorElement) isElement()              {}
func (PhysicalAssociationElement) isElement() {}
func (LogicalElement) isElement()             {}
func (AliasElement) isElement()               {}

// IsNull reports whether e is nil or a NullElement.
func IsNull(e Element) bool {
	return e == nil || e.Kind() == KindNull
}

// describe renders an element for dumps and log messages.
func describe(e Element) string {
	switch v := e.(type) {
	case NullElement, PluginElement, PhysicalAssociationElement, LogicalElement:
		return e.Kind().String()
	case DeviceElement:
		if v.Host != "" {
			return fmt.Sprintf("DEVICE %s@%s:%d", v.DeviceName, v.Host, v.Port)
		}
		return fmt.Sprintf("DEVICE %s", v.DeviceName)
	case InterfaceElement:
		return fmt.Sprintf("INTERFACE count=%d", v.Count)
	case SensorElement:
		return fmt.Sprintf("SENSOR %d", v.Number)
	case AliasElement:
		return fmt.Sprintf("ALIAS -> %s", v.Source)
	default:
		return "UNKNOWN"
	}
}
