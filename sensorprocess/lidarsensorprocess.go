package sensorprocess

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	s "github.com/viam-modules/viam-tsdf/sensors"
)

// StartLidar polls the lidar to get the next sensor reading and integrates
// it into the voxel map. Stops when the context is Done.
func (config *Config) StartLidar(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addPointCloudInOnline(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addPointCloudInOnline gets the most recent lidar reading, integrates it
// and sleeps the remainder of the polling interval.
func (config *Config) addPointCloudInOnline(ctx context.Context) error {
	reading, err := config.Lidar.TimedLidarReading(ctx)
	if err != nil {
		return err
	}

	timeToSleep := config.tryIntegratePointCloudOnce(ctx, reading)
	time.Sleep(time.Duration(timeToSleep) * time.Millisecond)
	config.Logger.Debugf("lidar sleep for %vms", timeToSleep)
	return nil
}

// tryIntegratePointCloudOnce integrates a reading and does not retry:
// ingestion is at-most-once, a reading whose pose cannot be resolved is
// dropped and the failure surfaced as a diagnostic. Returns remainder of
// time interval.
func (config *Config) tryIntegratePointCloudOnce(ctx context.Context, reading s.TimedLidarReadingResponse) int {
	startTime := time.Now().UTC()

	if err := config.tryIntegratePointCloud(ctx, reading); err != nil {
		config.Logger.Errorw("Dropping lidar reading", "error", err)
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return int(math.Max(0, float64(1000/config.Lidar.DataFrequencyHz()-timeElapsedMs)))
}

// tryIntegratePointCloud resolves the sensor pose for a reading and forwards
// the posed cloud to the map facade.
func (config *Config) tryIntegratePointCloud(ctx context.Context, reading s.TimedLidarReadingResponse) error {
	sensorToWorld, err := config.Resolver.Resolve(ctx, config.Lidar.Name(), config.WorldFrame, reading.ReadingTime)
	if err != nil {
		return errors.Wrap(err, "could not resolve sensor pose")
	}

	if err := config.MapFacade.IntegratePointCloud(ctx, config.Timeout, sensorToWorld, reading.Cloud); err != nil {
		config.Logger.Debugf("%v \t | LIDAR | Failure \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
		return err
	}
	config.Logger.Debugf("%v \t | LIDAR | Success \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	return nil
}
