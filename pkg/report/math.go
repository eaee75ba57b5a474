package report

import "math"

// Vec2 is a 2D vector.
type Vec2 struct {
	_ struct{} `cbor:",toarray"`
	X float64  `json:"x"`
	Y float64  `json:"y"`
}

// Vec3 is a 3D vector.
type Vec3 struct {
	_ struct{} `cbor:",toarray"`
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z float64  `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Quaternion is a rotation quaternion in (W, X, Y, Z) order.
type Quaternion struct {
	_ struct{} `cbor:",toarray"`
	W float64  `json:"w"`
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z float64  `json:"z"`
}

// IdentityQuaternion is the rotation that leaves vectors unchanged.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// QuaternionFromAxisAngle builds a rotation of radians around axis.
func QuaternionFromAxisAngle(axis Vec3, radians float64) Quaternion {
	n := axis.Norm()
	if n == 0 {
		return IdentityQuaternion()
	}
	s := math.Sin(radians/2) / n
	return Quaternion{W: math.Cos(radians / 2), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// Mul returns the Hamilton product q * o.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Conjugate returns the conjugate of q.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Normalize returns q scaled to unit length. The zero quaternion maps to
// the identity.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return IdentityQuaternion()
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies the rotation q to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	p := q.Mul(Quaternion{X: v.X, Y: v.Y, Z: v.Z}).Mul(q.Conjugate())
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// PoseState is a position plus orientation.
type PoseState struct {
	Translation Vec3       `json:"translation" cbor:"1,keyasint"`
	Rotation    Quaternion `json:"rotation" cbor:"2,keyasint"`
}

// IdentityPose returns the pose at the origin with no rotation.
func IdentityPose() PoseState {
	return PoseState{Rotation: IdentityQuaternion()}
}
