package report

import (
	"errors"
	"fmt"

	"github.com/devtree-io/devtree-go/pkg/wire"
)

// ErrUnknownKind is returned when decoding a payload of an unknown kind.
var ErrUnknownKind = errors.New("unknown report kind")

// Encode serializes a report payload.
func Encode(r Report) ([]byte, error) {
	if r == nil || !r.Kind().IsValid() {
		return nil, ErrUnknownKind
	}
	return wire.Marshal(r)
}

// Decode deserializes a payload of the given kind.
func Decode(kind Kind, data []byte) (Report, error) {
	switch kind {
	case KindPose:
		return decodeAs[Pose](data)
	case KindPosition:
		return decodeAs[Position](data)
	case KindOrientation:
		return decodeAs[Orientation](data)
	case KindVelocity:
		return decodeAs[Velocity](data)
	case KindAcceleration:
		return decodeAs[Acceleration](data)
	case KindButton:
		return decodeAs[Button](data)
	case KindAnalog:
		return decodeAs[Analog](data)
	case KindImaging:
		return decodeAs[Imaging](data)
	case KindLocation2D:
		return decodeAs[Location2D](data)
	case KindDirection:
		return decodeAs[Direction](data)
	case KindEyeTracker3DGaze:
		return decodeAs[EyeTracker3DGaze](data)
	case KindEyeTrackerBlink:
		return decodeAs[EyeTrackerBlink](data)
	case KindNaviVelocity:
		return decodeAs[NaviVelocity](data)
	case KindNaviPosition:
		return decodeAs[NaviPosition](data)
	case KindSkeleton:
		return decodeAs[Skeleton](data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

func decodeAs[T Report](data []byte) (Report, error) {
	var r T
	if err := wire.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode %s report: %w", r.Kind(), err)
	}
	return r, nil
}
