package report

import (
	"errors"
	"math"
	"testing"
)

func TestKindMessageName(t *testing.T) {
	if got := KindPose.MessageName(); got != "devtree.report.pose" {
		t.Errorf("MessageName() = %q", got)
	}
	for _, k := range Kinds() {
		back, ok := KindFromMessageName(k.MessageName())
		if !ok || back != k {
			t.Errorf("KindFromMessageName(%q) = %v, %v", k.MessageName(), back, ok)
		}
	}
	if _, ok := KindFromMessageName("devtree.report.nope"); ok {
		t.Error("unknown message name should not map to a kind")
	}
}

func TestKeepsState(t *testing.T) {
	if KindImaging.KeepsState() {
		t.Error("imaging reports must not be cached")
	}
	for _, k := range []Kind{KindPose, KindButton, KindAnalog, KindEyeTrackerBlink} {
		if !k.KeepsState() {
			t.Errorf("%s.KeepsState() = false, want true", k)
		}
	}
}

func TestInterfaceKinds(t *testing.T) {
	owners := make(map[Kind]int)
	for name := range interfaceKinds {
		for _, k := range InterfaceKinds(name) {
			owners[k]++
		}
	}
	for _, k := range Kinds() {
		if owners[k] != 1 {
			t.Errorf("kind %v emitted by %d interfaces, want 1", k, owners[k])
		}
	}
	if got := InterfaceKinds("button"); len(got) != 1 || got[0] != KindButton {
		t.Errorf("InterfaceKinds(button) = %v", got)
	}
	if got := InterfaceKinds("nope"); got != nil {
		t.Errorf("InterfaceKinds(nope) = %v, want nil", got)
	}
}

func TestEncodeDecodePose(t *testing.T) {
	in := Pose{
		Sensor: 2,
		Pose: PoseState{
			Translation: Vec3{X: 1, Y: 2, Z: 3},
			Rotation:    Quaternion{W: 0.5, X: 0.5, Y: 0.5, Z: 0.5},
		},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(KindPose, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("Decode = %+v, want %+v", out, in)
	}
	if out.SensorID() != 2 {
		t.Errorf("SensorID() = %d, want 2", out.SensorID())
	}
}

func TestDecodeImagingKeepsBuffer(t *testing.T) {
	in := Imaging{Sensor: 0, Metadata: ImagingMetadata{Width: 2, Height: 1, Channels: 1, Depth: 1}, Buffer: []byte{9, 8}}
	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(KindImaging, data)
	if err != nil {
		t.Fatal(err)
	}
	img := out.(Imaging)
	if string(img.Buffer) != string(in.Buffer) || img.Metadata != in.Metadata {
		t.Errorf("Decode = %+v", img)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode(Kind(200), nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Decode error = %v, want ErrUnknownKind", err)
	}
	if _, err := Encode(nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Encode(nil) error = %v, want ErrUnknownKind", err)
	}
}

func TestQuaternionRotate(t *testing.T) {
	q := QuaternionFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	v := q.Rotate(Vec3{X: 1})

	if math.Abs(v.X) > 1e-9 || math.Abs(v.Y-1) > 1e-9 || math.Abs(v.Z) > 1e-9 {
		t.Errorf("Rotate = %+v, want (0, 1, 0)", v)
	}
}

func TestQuaternionNormalizeZero(t *testing.T) {
	if got := (Quaternion{}).Normalize(); got != IdentityQuaternion() {
		t.Errorf("Normalize(0) = %+v, want identity", got)
	}
}
