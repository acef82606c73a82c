// Package sensors defines the timed lidar interface the ingestion pipeline
// polls, backed by a camera component that supports point clouds.
package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/utils/contextutils"
)

const replayTimestampErrorMessage = "replay sensor timestamp parse error"

// TimedLidar describes a sensor that reports the time the reading is from &
// whether or not it is from a replay sensor.
type TimedLidar interface {
	Name() string
	DataFrequencyHz() int
	TimedLidarReading(ctx context.Context) (TimedLidarReadingResponse, error)
}

// TimedLidarReadingResponse represents a lidar point cloud with the time it
// was captured & allows the caller to know if the reading is from a replay
// sensor.
type TimedLidarReadingResponse struct {
	Cloud          pointcloud.PointCloud
	ReadingTime    time.Time
	IsReplaySensor bool
}

// Lidar represents a LIDAR sensor.
type Lidar struct {
	name            string
	dataFrequencyHz int
	Lidar           camera.Camera
}

// Name returns the name of the lidar.
func (lidar Lidar) Name() string {
	return lidar.name
}

// DataFrequencyHz returns the data rate in Hz of the lidar.
func (lidar Lidar) DataFrequencyHz() int {
	return lidar.dataFrequencyHz
}

// TimedLidarReading returns a point cloud from the lidar and the time the
// reading is from & whether it was a replay sensor or not. The cloud stays
// in the sensor frame; transformation into the world frame happens at
// integration time.
func (lidar Lidar) TimedLidarReading(ctx context.Context) (TimedLidarReadingResponse, error) {
	replay := false

	ctxWithMetadata, md := contextutils.ContextWithMetadata(ctx)
	readingPc, err := lidar.Lidar.NextPointCloud(ctxWithMetadata)
	if err != nil {
		return TimedLidarReadingResponse{}, errors.Wrap(err, "NextPointCloud error")
	}
	readingTime := time.Now().UTC()

	if timeRequestedMetadata, ok := md[contextutils.TimeRequestedMetadataKey]; ok {
		replay = true
		if readingTime, err = time.Parse(time.RFC3339Nano, timeRequestedMetadata[0]); err != nil {
			return TimedLidarReadingResponse{}, errors.Wrap(err, replayTimestampErrorMessage)
		}
	}
	return TimedLidarReadingResponse{Cloud: readingPc, ReadingTime: readingTime, IsReplaySensor: replay}, nil
}

// NewLidar returns a new Lidar.
func NewLidar(
	ctx context.Context,
	deps resource.Dependencies,
	cameraName string,
	dataFrequencyHz int,
	logger logging.Logger,
) (TimedLidar, error) {
	_, span := trace.StartSpan(ctx, "viamtsdf::sensors::NewLidar")
	defer span.End()
	lidar, err := camera.FromDependencies(deps, cameraName)
	if err != nil {
		return Lidar{}, errors.Wrapf(err, "error getting lidar camera %v for tsdf service", cameraName)
	}

	// If there is a camera provided in the 'camera' field, we enforce that it supports PCD.
	properties, err := lidar.Properties(ctx)
	if err != nil {
		return Lidar{}, errors.Wrapf(err, "error getting lidar camera properties %v for tsdf service", cameraName)
	}

	if !properties.SupportsPCD {
		return Lidar{}, errors.New("configuring lidar camera error: " +
			"'camera' must support PCD")
	}

	return Lidar{
		name:            cameraName,
		dataFrequencyHz: dataFrequencyHz,
		Lidar:           lidar,
	}, nil
}
