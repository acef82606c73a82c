// Package mapfacade is used to mock a mapfacade.
package mapfacade

import (
	"context"
	"sync"
	"time"

	"go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-tsdf/pose"
)

// Mock represents a fake instance of mapfacade.
type Mock struct {
	MapFacade
	requestFunc func(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{},
		timeout time.Duration,
	) (interface{}, error)
	StartWorkerFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	IntegratePointCloudFunc func(
		ctx context.Context,
		timeout time.Duration,
		sensorToWorld pose.Stamped,
		cloud pointcloud.PointCloud,
	) error
	PositionFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (pose.Stamped, error)
	PointCloudMapFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	InternalStateFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	StatsFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (Stats, error)
}

// request calls the injected requestFunc or the real version.
func (mf *Mock) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	if mf.requestFunc == nil {
		return mf.MapFacade.request(ctxParent, requestType, inputs, timeout)
	}
	return mf.requestFunc(ctxParent, requestType, inputs, timeout)
}

// StartWorker calls the injected StartWorkerFunc or the real version.
func (mf *Mock) StartWorker(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	if mf.StartWorkerFunc == nil {
		mf.MapFacade.StartWorker(ctx, activeBackgroundWorkers)
		return
	}
	mf.StartWorkerFunc(ctx, activeBackgroundWorkers)
}

// IntegratePointCloud calls the injected IntegratePointCloudFunc or the real version.
func (mf *Mock) IntegratePointCloud(
	ctx context.Context,
	timeout time.Duration,
	sensorToWorld pose.Stamped,
	cloud pointcloud.PointCloud,
) error {
	if mf.IntegratePointCloudFunc == nil {
		return mf.MapFacade.IntegratePointCloud(ctx, timeout, sensorToWorld, cloud)
	}
	return mf.IntegratePointCloudFunc(ctx, timeout, sensorToWorld, cloud)
}

// Position calls the injected PositionFunc or the real version.
func (mf *Mock) Position(ctx context.Context, timeout time.Duration) (pose.Stamped, error) {
	if mf.PositionFunc == nil {
		return mf.MapFacade.Position(ctx, timeout)
	}
	return mf.PositionFunc(ctx, timeout)
}

// PointCloudMap calls the injected PointCloudMapFunc or the real version.
func (mf *Mock) PointCloudMap(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if mf.PointCloudMapFunc == nil {
		return mf.MapFacade.PointCloudMap(ctx, timeout)
	}
	return mf.PointCloudMapFunc(ctx, timeout)
}

// InternalState calls the injected InternalStateFunc or the real version.
func (mf *Mock) InternalState(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if mf.InternalStateFunc == nil {
		return mf.MapFacade.InternalState(ctx, timeout)
	}
	return mf.InternalStateFunc(ctx, timeout)
}

// Stats calls the injected StatsFunc or the real version.
func (mf *Mock) Stats(ctx context.Context, timeout time.Duration) (Stats, error) {
	if mf.StatsFunc == nil {
		return mf.MapFacade.Stats(ctx, timeout)
	}
	return mf.StatsFunc(ctx, timeout)
}
