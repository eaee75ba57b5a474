package alias

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/devtree-io/devtree-go/pkg/report"
)

// Transform layer keys understood by ApplyToPose.
const (
	TranslateKey  = "translate"
	RotateKey     = "rotate"
	PostRotateKey = "postrotate"
)

// Transform is an ordered list of transform layers, outermost first. Each
// layer is the JSON object of one alias level with its source removed.
type Transform []map[string]any

// IsIdentity reports whether the transform has no layers.
func (t Transform) IsIdentity() bool {
	return len(t) == 0
}

// Compose returns outer applied on top of inner.
func Compose(outer, inner Transform) Transform {
	if len(outer) == 0 {
		return inner
	}
	out := make(Transform, 0, len(outer)+len(inner))
	out = append(out, outer...)
	return append(out, inner...)
}

// String renders the transform as JSON.
func (t Transform) String() string {
	if t.IsIdentity() {
		return "[]"
	}
	data, err := json.Marshal([]map[string]any(t))
	if err != nil {
		return "[]"
	}
	return string(data)
}

// ApplyToPose applies the transform to a pose, innermost layer first.
// Within a layer postrotate applies in the local frame, then rotate and
// translate in the parent frame. Unknown keys are ignored.
func (t Transform) ApplyToPose(p report.PoseState) report.PoseState {
	for i := len(t) - 1; i >= 0; i-- {
		layer := t[i]
		if q, ok := rotationOf(layer[PostRotateKey]); ok {
			p.Rotation = p.Rotation.Mul(q).Normalize()
		}
		if q, ok := rotationOf(layer[RotateKey]); ok {
			p.Rotation = q.Mul(p.Rotation).Normalize()
			p.Translation = q.Rotate(p.Translation)
		}
		if v, ok := vectorOf(layer[TranslateKey]); ok {
			p.Translation = p.Translation.Add(v)
		}
	}
	return p
}

// ApplyToPosition applies the transform to a bare position.
func (t Transform) ApplyToPosition(v report.Vec3) report.Vec3 {
	p := t.ApplyToPose(report.PoseState{Translation: v, Rotation: report.IdentityQuaternion()})
	return p.Translation
}

// ApplyToOrientation applies the rotational part of the transform.
func (t Transform) ApplyToOrientation(q report.Quaternion) report.Quaternion {
	p := t.ApplyToPose(report.PoseState{Rotation: q})
	return p.Rotation
}

// rotationOf accepts {"w","x","y","z"} quaternions and
// {"axis": "x"|"y"|"z"|[x,y,z], "degrees"|"radians": n} axis-angle forms.
func rotationOf(v any) (report.Quaternion, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return report.Quaternion{}, false
	}
	if _, hasW := obj["w"]; hasW {
		w, _ := number(obj["w"])
		x, _ := number(obj["x"])
		y, _ := number(obj["y"])
		z, _ := number(obj["z"])
		return report.Quaternion{W: w, X: x, Y: y, Z: z}.Normalize(), true
	}

	var axis report.Vec3
	switch a := obj["axis"].(type) {
	case string:
		switch strings.ToLower(strings.TrimPrefix(a, "-")) {
		case "x":
			axis = report.Vec3{X: 1}
		case "y":
			axis = report.Vec3{Y: 1}
		case "z":
			axis = report.Vec3{Z: 1}
		default:
			return report.Quaternion{}, false
		}
		if strings.HasPrefix(a, "-") {
			axis = axis.Scale(-1)
		}
	case []any:
		if len(a) != 3 {
			return report.Quaternion{}, false
		}
		x, _ := number(a[0])
		y, _ := number(a[1])
		z, _ := number(a[2])
		axis = report.Vec3{X: x, Y: y, Z: z}
	default:
		return report.Quaternion{}, false
	}

	radians, ok := number(obj["radians"])
	if !ok {
		deg, ok := number(obj["degrees"])
		if !ok {
			return report.Quaternion{}, false
		}
		radians = deg * math.Pi / 180
	}
	return report.QuaternionFromAxisAngle(axis, radians), true
}

func vectorOf(v any) (report.Vec3, bool) {
	switch val := v.(type) {
	case map[string]any:
		x, _ := number(val["x"])
		y, _ := number(val["y"])
		z, _ := number(val["z"])
		return report.Vec3{X: x, Y: y, Z: z}, true
	case []any:
		if len(val) != 3 {
			return report.Vec3{}, false
		}
		x, _ := number(val[0])
		y, _ := number(val[1])
		z, _ := number(val[2])
		return report.Vec3{X: x, Y: y, Z: z}, true
	default:
		return report.Vec3{}, false
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
