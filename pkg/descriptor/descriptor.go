package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Descriptor errors.
var (
	ErrInvalidDescriptor     = errors.New("invalid device descriptor")
	ErrInvalidInterface      = errors.New("invalid interface declaration")
	ErrInvalidSemantic       = errors.New("invalid semantic entry")
	ErrInvalidAutomaticAlias = errors.New("invalid automatic alias")
)

// Well-known descriptor keys.
const (
	KeyVendor           = "deviceVendor"
	KeyName             = "deviceName"
	KeyInterfaces       = "interfaces"
	KeySemantic         = "semantic"
	KeyAutomaticAliases = "automaticAliases"
	KeyCount            = "count"
)

// Interface is one entry of the descriptor's interface list.
type Interface struct {
	// Name is the interface name, e.g. "tracker".
	Name string

	// Count is the number of sensors. Defaults to 1 when not declared.
	Count int

	// Config holds the raw declaration, including keys this package does
	// not interpret.
	Config map[string]any
}

// Descriptor is a parsed device descriptor. Keys it does not interpret are
// preserved and written back by MarshalJSON.
type Descriptor struct {
	raw map[string]any
}

// Parse parses a descriptor. Comments and trailing commas are accepted.
func Parse(data []byte) (*Descriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDescriptor)
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(trimmed)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidDescriptor)
	}

	d := &Descriptor{raw: raw}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptor) validate() error {
	ifaces, ok := d.raw[KeyInterfaces]
	if !ok {
		return nil
	}
	obj, ok := ifaces.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %q must be an object", ErrInvalidDescriptor, KeyInterfaces)
	}
	for name, decl := range obj {
		if _, err := parseInterface(name, decl); err != nil {
			return err
		}
	}
	return nil
}

func parseInterface(name string, decl any) (Interface, error) {
	if name == "" || strings.Contains(name, "/") {
		return Interface{}, fmt.Errorf("%w: bad name %q", ErrInvalidInterface, name)
	}
	iface := Interface{Name: name, Count: 1}
	switch v := decl.(type) {
	case bool:
		if !v {
			return Interface{}, fmt.Errorf("%w: %q is disabled", ErrInvalidInterface, name)
		}
		iface.Config = map[string]any{}
	case map[string]any:
		iface.Config = v
		if c, ok := v[KeyCount]; ok {
			n, err := countOf(c)
			if err != nil {
				return Interface{}, fmt.Errorf("%w: %q: %v", ErrInvalidInterface, name, err)
			}
			iface.Count = n
		}
	default:
		return Interface{}, fmt.Errorf("%w: %q must be an object", ErrInvalidInterface, name)
	}
	return iface, nil
}

func countOf(v any) (int, error) {
	var n int64
	switch c := v.(type) {
	case json.Number:
		i, err := c.Int64()
		if err != nil {
			return 0, fmt.Errorf("count %s is not an integer", c)
		}
		n = i
	case float64:
		n = int64(c)
	case int:
		n = int64(c)
	default:
		return 0, fmt.Errorf("count has type %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("count %d is negative", n)
	}
	return int(n), nil
}

// Vendor returns the deviceVendor field.
func (d *Descriptor) Vendor() string {
	s, _ := d.raw[KeyVendor].(string)
	return s
}

// Name returns the deviceName field.
func (d *Descriptor) Name() string {
	s, _ := d.raw[KeyName].(string)
	return s
}

// Interfaces returns the declared interfaces sorted by name.
func (d *Descriptor) Interfaces() []Interface {
	obj, _ := d.raw[KeyInterfaces].(map[string]any)
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Interface, 0, len(names))
	for _, name := range names {
		iface, err := parseInterface(name, obj[name])
		if err != nil {
			continue
		}
		out = append(out, iface)
	}
	return out
}

// Interface returns the named interface.
func (d *Descriptor) Interface(name string) (Interface, bool) {
	obj, _ := d.raw[KeyInterfaces].(map[string]any)
	decl, ok := obj[name]
	if !ok {
		return Interface{}, false
	}
	iface, err := parseInterface(name, decl)
	return iface, err == nil
}

// Semantic returns the raw semantic tree, or nil.
func (d *Descriptor) Semantic() map[string]any {
	obj, _ := d.raw[KeySemantic].(map[string]any)
	return obj
}

// Get returns a top-level value by key.
func (d *Descriptor) Get(key string) (any, bool) {
	v, ok := d.raw[key]
	return v, ok
}

// MarshalJSON writes the descriptor as compact JSON with sorted keys.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.raw)
}

func (d *Descriptor) setInterface(name string, config map[string]any) {
	obj, ok := d.raw[KeyInterfaces].(map[string]any)
	if !ok {
		obj = make(map[string]any)
		d.raw[KeyInterfaces] = obj
	}
	obj[name] = config
}
