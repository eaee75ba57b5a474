package descriptor

import "sort"

// composites maps a composite interface to the primitive interfaces it
// implies, in declaration order.
var composites = map[string][]string{
	"eyetracker": {"direction", "location2D", "tracker", "button"},
	"skeleton":   {"tracker"},
}

// Implied returns the interfaces implied by a composite interface name, or
// nil for primitive interfaces.
func Implied(name string) []string {
	out := composites[name]
	if out == nil {
		return nil
	}
	return append([]string(nil), out...)
}

// Normalize expands composite interfaces in place. Constituents the device
// declares itself are left untouched. The returned map names, for every
// interface added, the composite interface that generates it.
func (d *Descriptor) Normalize() map[string]string {
	implied := make(map[string]string)

	var generators []Interface
	for _, iface := range d.Interfaces() {
		if _, ok := composites[iface.Name]; ok {
			generators = append(generators, iface)
		}
	}
	sort.Slice(generators, func(i, j int) bool { return generators[i].Name < generators[j].Name })

	for _, gen := range generators {
		for _, name := range composites[gen.Name] {
			if _, declared := d.Interface(name); declared {
				continue
			}
			d.setInterface(name, map[string]any{KeyCount: gen.Count})
			implied[name] = gen.Name
		}
	}
	return implied
}

// NormalizeDeviceDescriptor parses a descriptor, expands its composite
// interfaces and returns the canonical compact JSON form.
func NormalizeDeviceDescriptor(data []byte) ([]byte, error) {
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	d.Normalize()
	return d.MarshalJSON()
}
