package sensors

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/testutils/inject"
	"go.viam.com/rdk/utils/contextutils"
)

// BadTime can be used to represent something that should cause an error while parsing it as a time.
const BadTime = "NOT A TIME"

// TestTimestamp can be used to test specific timestamps provided by a replay sensor.
var TestTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05.999999Z")

// TestSensor represents sensors used for testing.
type TestSensor string

const (
	// InvalidSensorTestErrMsg represents an error message that indicates that the sensor is invalid.
	InvalidSensorTestErrMsg = "invalid test sensor"

	// GoodLidar is a lidar that works as expected and returns a pointcloud.
	GoodLidar TestSensor = "good_lidar"
	// LidarWithErroringFunctions is a lidar whose functions return errors.
	LidarWithErroringFunctions TestSensor = "lidar_with_erroring_functions"
	// LidarWithInvalidProperties is a lidar whose properties do not support PCD.
	LidarWithInvalidProperties TestSensor = "lidar_with_invalid_properties"
	// GibberishLidar is a lidar that can't be found in the dependencies.
	GibberishLidar TestSensor = "gibberish_lidar"
	// NoLidar is a lidar that represents that no lidar is set up or added.
	NoLidar TestSensor = ""

	// ReplayLidar is a lidar that works as expected and tags readings with a requested timestamp.
	ReplayLidar TestSensor = "replay_lidar"
	// InvalidReplayLidar is a lidar whose meta timestamp is invalid.
	InvalidReplayLidar TestSensor = "invalid_replay_lidar"
)

var testLidars = map[TestSensor]func() *inject.Camera{
	GoodLidar:                  getGoodLidar,
	LidarWithErroringFunctions: getLidarWithErroringFunctions,
	LidarWithInvalidProperties: getLidarWithInvalidProperties,
	ReplayLidar:                func() *inject.Camera { return getReplayLidar(TestTimestamp) },
	InvalidReplayLidar:         func() *inject.Camera { return getReplayLidar(BadTime) },
}

// SetupDeps returns the dependencies based on the lidar name passed as argument.
func SetupDeps(lidarName TestSensor) resource.Dependencies {
	deps := make(resource.Dependencies)
	if getLidarFunc, ok := testLidars[lidarName]; ok {
		deps[camera.Named(string(lidarName))] = getLidarFunc()
	}
	return deps
}

func getGoodLidar() *inject.Camera {
	cam := &inject.Camera{}
	cam.NextPointCloudFunc = func(ctx context.Context) (pointcloud.PointCloud, error) {
		cloud := pointcloud.New()
		if err := cloud.Set(r3.Vector{X: 1, Y: 1, Z: 1}, pointcloud.NewBasicData()); err != nil {
			return nil, err
		}
		return cloud, nil
	}
	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{SupportsPCD: true}, nil
	}
	return cam
}

func getLidarWithErroringFunctions() *inject.Camera {
	cam := &inject.Camera{}
	cam.NextPointCloudFunc = func(ctx context.Context) (pointcloud.PointCloud, error) {
		return nil, errors.New(InvalidSensorTestErrMsg)
	}
	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{SupportsPCD: true}, nil
	}
	return cam
}

func getLidarWithInvalidProperties() *inject.Camera {
	cam := &inject.Camera{}
	cam.NextPointCloudFunc = func(ctx context.Context) (pointcloud.PointCloud, error) {
		return pointcloud.New(), nil
	}
	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{SupportsPCD: false}, nil
	}
	return cam
}

func getReplayLidar(testTime string) *inject.Camera {
	cam := &inject.Camera{}
	cam.NextPointCloudFunc = func(ctx context.Context) (pointcloud.PointCloud, error) {
		md := ctx.Value(contextutils.MetadataContextKey)
		if mdMap, ok := md.(map[string][]string); ok {
			mdMap[contextutils.TimeRequestedMetadataKey] = []string{testTime}
		}
		return pointcloud.New(), nil
	}
	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{SupportsPCD: true}, nil
	}
	return cam
}
