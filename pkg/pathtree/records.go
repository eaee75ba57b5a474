package pathtree

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Record is the flat form of one non-Null node, used to ship a tree to
// clients and to dump it as JSON.
type Record struct {
	Path      string            `json:"path" cbor:"1,keyasint"`
	Kind      ElementKind       `json:"kind" cbor:"2,keyasint"`
	Device    *DeviceElement    `json:"device,omitempty" cbor:"3,keyasint,omitempty"`
	Interface *InterfaceElement `json:"interface,omitempty" cbor:"4,keyasint,omitempty"`
	Sensor    *SensorElement    `json:"sensor,omitempty" cbor:"5,keyasint,omitempty"`
	Alias     *AliasElement     `json:"alias,omitempty" cbor:"6,keyasint,omitempty"`
}

// Element rebuilds the element described by r.
func (r Record) Element() (Element, error) {
	switch r.Kind {
	case KindNull:
		return NullElement{}, nil
	case KindPlugin:
		return PluginElement{}, nil
	case KindDevice:
		if r.Device == nil {
			return nil, fmt.Errorf("record %s: missing device payload", r.Path)
		}
		return *r.Device, nil
	case KindInterface:
		if r.Interface == nil {
			return InterfaceElement{}, nil
		}
		return *r.Interface, nil
	case KindSensor:
		if r.Sensor == nil {
			return nil, fmt.Errorf("record %s: missing sensor payload", r.Path)
		}
		return *r.Sensor, nil
	case KindPhysicalAssociation:
		return PhysicalAssociationElement{}, nil
	case KindLogical:
		return LogicalElement{}, nil
	case KindAlias:
		if r.Alias == nil {
			return nil, fmt.Errorf("record %s: missing alias payload", r.Path)
		}
		return *r.Alias, nil
	default:
		return nil, fmt.Errorf("record %s: unknown kind %d", r.Path, r.Kind)
	}
}

func recordFor(n Node) Record {
	r := Record{Path: n.FullPath(), Kind: n.Kind()}
	switch e := n.Element().(type) {
	case DeviceElement:
		r.Device = &e
	case InterfaceElement:
		r.Interface = &e
	case SensorElement:
		r.Sensor = &e
	case AliasElement:
		r.Alias = &e
	}
	return r
}

// Records returns every non-Null node in traversal order.
func (t *Tree) Records() []Record {
	var out []Record
	t.Visit(func(n Node) bool {
		if !n.IsRoot() && n.Kind() != KindNull {
			out = append(out, recordFor(n))
		}
		return true
	})
	return out
}

// FromRecords builds a tree from records produced by Records.
func FromRecords(records []Record) (*Tree, error) {
	t := New()
	for _, r := range records {
		elem, err := r.Element()
		if err != nil {
			return nil, err
		}
		n, err := t.GetNodeByPath(r.Path)
		if err != nil {
			return nil, err
		}
		if _, err := t.SetElement(n, elem); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MarshalJSON encodes the tree as its record list.
func (t *Tree) MarshalJSON() ([]byte, error) {
	records := t.Records()
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// UnmarshalJSON replaces t with the tree described by a record list.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	built, err := FromRecords(records)
	if err != nil {
		return err
	}
	*t = *built
	return nil
}

// Dump writes an indented listing of the tree to w.
func (t *Tree) Dump(w io.Writer) error {
	var err error
	t.Visit(func(n Node) bool {
		if err != nil {
			return false
		}
		depth := 0
		for p, ok := n.Parent(); ok; p, ok = p.Parent() {
			depth++
		}
		name := n.Name()
		if n.IsRoot() {
			name = Separator
		}
		_, err = fmt.Fprintf(w, "%s%s [%s]\n", strings.Repeat("  ", depth), name, describe(n.Element()))
		return true
	})
	return err
}
