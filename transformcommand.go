package viamtsdf

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
)

const (
	// PublishTransformCommand can be used to publish a stamped transform into the transform buffer.
	PublishTransformCommand = "publish_transform"
	// FallbackCountCommand can be used to read how many pose resolutions used the latest-available fallback.
	FallbackCountCommand = "fallback_count"
	// StatsCommand can be used to read the map's allocation counters.
	StatsCommand = "stats"
)

var (
	// ErrTransformNotAMap denotes that the transform has not been properly formatted as a map.
	ErrTransformNotAMap = errors.New("could not parse provided transform as a map")

	// ErrFromFrameNotProvided denotes that the transform is missing its source frame.
	ErrFromFrameNotProvided = errors.New("transform from frame not provided")

	// ErrToFrameNotProvided denotes that the transform is missing its target frame.
	ErrToFrameNotProvided = errors.New("transform to frame not provided")

	// ErrCoordinateNotFloat64 denotes that a translation coordinate is not a float64.
	ErrCoordinateNotFloat64 = errors.New("could not parse provided translation coordinate as a float64")

	// ErrTimeNotParsable denotes that the transform timestamp is not RFC3339Nano formatted.
	ErrTimeNotParsable = errors.New("could not parse provided transform time as RFC3339Nano")

	// ErrQuaternionInvalid denotes that a provided quaternion is missing components.
	ErrQuaternionInvalid = errors.New("quaternion given, but invalid format detected")
)

type stampedTransformCommand struct {
	fromFrame string
	toFrame   string
	at        time.Time
	pose      spatialmath.Pose
}

// parseTransformCommand parses a publish_transform DoCommand payload into a
// stamped transform. A missing time means "now"; a missing quaternion means
// a pure translation.
func parseTransformCommand(unstructuredTransform interface{}) (stampedTransformCommand, error) {
	transformMap, ok := unstructuredTransform.(map[string]interface{})
	if !ok {
		return stampedTransformCommand{}, ErrTransformNotAMap
	}

	cmd := stampedTransformCommand{at: time.Now().UTC()}

	if cmd.fromFrame, ok = transformMap["from"].(string); !ok || cmd.fromFrame == "" {
		return stampedTransformCommand{}, ErrFromFrameNotProvided
	}
	if cmd.toFrame, ok = transformMap["to"].(string); !ok || cmd.toFrame == "" {
		return stampedTransformCommand{}, ErrToFrameNotProvided
	}

	if rawTime, ok := transformMap["time"]; ok {
		timeString, ok := rawTime.(string)
		if !ok {
			return stampedTransformCommand{}, ErrTimeNotParsable
		}
		at, err := time.Parse(time.RFC3339Nano, timeString)
		if err != nil {
			return stampedTransformCommand{}, ErrTimeNotParsable
		}
		cmd.at = at
	}

	point := r3.Vector{}
	for _, coordinate := range []struct {
		key    string
		target *float64
	}{
		{"x", &point.X},
		{"y", &point.Y},
		{"z", &point.Z},
	} {
		if rawValue, ok := transformMap[coordinate.key]; ok {
			value, ok := rawValue.(float64)
			if !ok {
				return stampedTransformCommand{}, ErrCoordinateNotFloat64
			}
			*coordinate.target = value
		}
	}

	if rawQuat, ok := transformMap["quat"]; ok {
		q, ok := rawQuat.(map[string]interface{})
		if !ok {
			return stampedTransformCommand{}, ErrQuaternionInvalid
		}
		valReal, ok1 := q["real"].(float64)
		valIMag, ok2 := q["imag"].(float64)
		valJMag, ok3 := q["jmag"].(float64)
		valKMag, ok4 := q["kmag"].(float64)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return stampedTransformCommand{}, ErrQuaternionInvalid
		}
		cmd.pose = spatialmath.NewPose(point,
			&spatialmath.Quaternion{Real: valReal, Imag: valIMag, Jmag: valJMag, Kmag: valKMag})
		return cmd, nil
	}

	cmd.pose = spatialmath.NewPoseFromPoint(point)
	return cmd, nil
}
