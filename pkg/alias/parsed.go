package alias

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/jsonc"
)

// Keys that name the source of an alias level.
const (
	SourceKey = "source"
	ChildKey  = "child"
)

// ParsedAlias is an immutable view of an alias specification. Use Parse or
// ParseValue to build one and check IsValid before using the leaf.
type ParsedAlias struct {
	valid  bool
	simple bool
	leaf   string

	// value is a string for simple aliases, otherwise map[string]any.
	value any
}

// Parse parses an alias from its string form. Input starting with '{' or '"'
// is treated as JSON; anything else is a bare path. Malformed input yields
// an invalid alias rather than an error.
func Parse(src string) ParsedAlias {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return ParsedAlias{}
	}
	if trimmed[0] != '{' && trimmed[0] != '"' {
		return ParseValue(trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON([]byte(trimmed))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ParsedAlias{}
	}
	if dec.More() {
		return ParsedAlias{}
	}
	return ParseValue(v)
}

// ParseValue builds an alias from an already decoded JSON value.
func ParseValue(v any) ParsedAlias {
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return ParsedAlias{}
		}
		return ParsedAlias{valid: true, simple: true, leaf: val, value: val}
	case map[string]any:
		leaf, ok := findLeaf(val, 0)
		if !ok {
			return ParsedAlias{}
		}
		obj := deepCopy(val).(map[string]any)
		if len(obj) == 1 {
			// {"source": "/path"} carries no transform.
			for _, k := range []string{SourceKey, ChildKey} {
				if s, ok := obj[k].(string); ok {
					return ParseValue(s)
				}
			}
		}
		return ParsedAlias{valid: true, leaf: leaf, value: obj}
	default:
		return ParsedAlias{}
	}
}

// maxNesting bounds how deep source objects may nest.
const maxNesting = 32

func findLeaf(obj map[string]any, depth int) (string, bool) {
	if depth > maxNesting {
		return "", false
	}
	src, ok := sourceOf(obj)
	if !ok {
		return "", false
	}
	switch s := src.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case map[string]any:
		return findLeaf(s, depth+1)
	default:
		return "", false
	}
}

func sourceOf(obj map[string]any) (any, bool) {
	if v, ok := obj[SourceKey]; ok {
		return v, true
	}
	v, ok := obj[ChildKey]
	return v, ok
}

func sourceKeyOf(obj map[string]any) string {
	if _, ok := obj[SourceKey]; ok {
		return SourceKey
	}
	return ChildKey
}

// IsValid reports whether the alias parsed successfully.
func (p ParsedAlias) IsValid() bool {
	return p.valid
}

// IsSimple reports whether the alias is a bare path without transforms.
func (p ParsedAlias) IsSimple() bool {
	return p.valid && p.simple
}

// Leaf returns the innermost source path. Empty for invalid aliases.
func (p ParsedAlias) Leaf() string {
	return p.leaf
}

// Value returns the decoded alias: a string for simple aliases, otherwise a
// copy of the JSON object.
func (p ParsedAlias) Value() any {
	if !p.valid {
		return nil
	}
	return deepCopy(p.value)
}

// WithLeaf returns a copy of the alias whose innermost source is leaf.
func (p ParsedAlias) WithLeaf(leaf string) ParsedAlias {
	if !p.valid || leaf == "" {
		return p
	}
	if p.simple {
		return ParseValue(leaf)
	}
	obj := deepCopy(p.value).(map[string]any)
	cur := obj
	for {
		key := sourceKeyOf(cur)
		next, ok := cur[key].(map[string]any)
		if !ok {
			cur[key] = leaf
			break
		}
		cur = next
	}
	return ParseValue(obj)
}

// Alias returns the canonical string form: the bare path for simple aliases,
// compact JSON with sorted keys otherwise.
func (p ParsedAlias) Alias() string {
	if !p.valid {
		return ""
	}
	if p.simple {
		return p.leaf
	}
	data, err := json.Marshal(p.value)
	if err != nil {
		return ""
	}
	return string(data)
}

// Transform returns the transform layers of the alias, outermost first.
func (p ParsedAlias) Transform() Transform {
	if !p.valid || p.simple {
		return nil
	}
	var layers Transform
	cur, _ := p.value.(map[string]any)
	for cur != nil {
		layer := make(map[string]any, len(cur))
		for k, v := range cur {
			if k == SourceKey || k == ChildKey {
				continue
			}
			layer[k] = deepCopy(v)
		}
		if len(layer) > 0 {
			layers = append(layers, layer)
		}
		src, _ := sourceOf(cur)
		cur, _ = src.(map[string]any)
	}
	return layers
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
