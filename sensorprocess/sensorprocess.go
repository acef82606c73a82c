// Package sensorprocess contains the logic to synchronize lidar point clouds
// with pose information and hand them to the voxel map for integration.
package sensorprocess

import (
	"context"
	"time"

	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-tsdf/mapfacade"
	"github.com/viam-modules/viam-tsdf/pose"
	s "github.com/viam-modules/viam-tsdf/sensors"
)

// PoseResolver resolves a sensor frame to a world-frame transform at a
// requested timestamp.
type PoseResolver interface {
	Resolve(ctx context.Context, sourceFrame, targetFrame string, at time.Time) (pose.Stamped, error)
}

// Config holds config needed throughout the process of adding a posed sensor
// reading to the voxel map. The pipeline keeps no state between events
// beyond what is configured here.
type Config struct {
	MapFacade  mapfacade.Interface
	Lidar      s.TimedLidar
	Resolver   PoseResolver
	WorldFrame string

	Timeout time.Duration
	Logger  logging.Logger
}
