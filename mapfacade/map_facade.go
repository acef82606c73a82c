// Package mapfacade funnels every voxel-map access through a single worker
// goroutine so that integration writes and export traversals can never
// observe each other mid-operation.
package mapfacade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-tsdf/pose"
	"github.com/viam-modules/viam-tsdf/tsdf"
	"github.com/viam-modules/viam-tsdf/viz"
)

var emptyRequestParams = map[RequestParamType]interface{}{}

// ErrNoPoseResolvedYet is returned from Position before any point cloud has
// been integrated.
var ErrNoPoseResolvedYet = errors.New("no pose has been resolved yet")

// RequestType defines the voxel map operation that is being made.
type RequestType int64

const (
	// integratePointCloud fuses one posed point cloud into the map.
	integratePointCloud RequestType = iota
	// position reads the pose of the most recently integrated cloud.
	position
	// pointCloudMap exports the visualization cloud as binary PCD.
	pointCloudMap
	// internalState snapshots the sparse map.
	internalState
	// stats reads allocation counters.
	stats
)

// RequestParamType defines the type being provided as input to the work.
type RequestParamType int64

const (
	// sensorPose is the resolved sensor-to-world pose of a reading.
	sensorPose RequestParamType = iota
	// sensorCloud is the sensor-frame point cloud of a reading.
	sensorCloud
)

// Response defines the result of one piece of work that can be put on the result channel.
type Response struct {
	result interface{}
	err    error
}

// Stats reports the map's allocation counters.
type Stats struct {
	NumBlocks         int
	NumObservedVoxels int
}

/*
MapFacade exists to ensure that only one go routine is mutating or traversing
the voxel map at a time: integration writes and whole-map exports are
serialized on the worker goroutine, so an exporter can never observe a block
mid-write.
*/
type MapFacade struct {
	voxelMap   *tsdf.Map
	integrator tsdf.Integrator
	exporter   *viz.Exporter

	requestChan chan Request
	latestPose  *pose.Stamped
}

// RequestInterface defines the functionality of a Request.
// It should not be used outside of this package but needs to be public for testing purposes.
type RequestInterface interface {
	doWork(mf *MapFacade) (interface{}, error)
}

// Interface defines the functionality of a MapFacade instance.
// It should not be used outside of this package but needs to be public for testing purposes.
type Interface interface {
	request(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{}, timeout time.Duration,
	) (interface{}, error)
	StartWorker(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	IntegratePointCloud(
		ctx context.Context,
		timeout time.Duration,
		sensorToWorld pose.Stamped,
		cloud pointcloud.PointCloud,
	) error
	Position(
		ctx context.Context,
		timeout time.Duration,
	) (pose.Stamped, error)
	PointCloudMap(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	InternalState(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	Stats(
		ctx context.Context,
		timeout time.Duration,
	) (Stats, error)
}

// Request defines all of the necessary pieces to call into the map worker.
type Request struct {
	responseChan  chan Response
	requestType   RequestType
	requestParams map[RequestParamType]interface{}
}

// New instantiates the MapFacade struct which serializes access to the voxel map.
func New(voxelMap *tsdf.Map, integrator tsdf.Integrator, exporter *viz.Exporter) MapFacade {
	return MapFacade{
		voxelMap:    voxelMap,
		integrator:  integrator,
		exporter:    exporter,
		requestChan: make(chan Request),
	}
}

// IntegratePointCloud fuses one posed point cloud into the map and records
// its pose as the latest known sensor pose.
func (mf *MapFacade) IntegratePointCloud(
	ctx context.Context,
	timeout time.Duration,
	sensorToWorld pose.Stamped,
	cloud pointcloud.PointCloud,
) error {
	requestParams := map[RequestParamType]interface{}{
		sensorPose:  sensorToWorld,
		sensorCloud: cloud,
	}

	_, err := mf.request(ctx, integratePointCloud, requestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// Position returns the pose of the most recently integrated point cloud.
func (mf *MapFacade) Position(ctx context.Context, timeout time.Duration) (pose.Stamped, error) {
	untyped, err := mf.request(ctx, position, emptyRequestParams, timeout)
	if err != nil {
		return pose.Stamped{}, err
	}

	pos, ok := untyped.(pose.Stamped)
	if !ok {
		return pose.Stamped{}, errors.New("unable to cast response from mapfacade to a stamped pose")
	}

	return pos, nil
}

// PointCloudMap exports the visualization point cloud as binary PCD bytes.
func (mf *MapFacade) PointCloudMap(ctx context.Context, timeout time.Duration) ([]byte, error) {
	untyped, err := mf.request(ctx, pointCloudMap, emptyRequestParams, timeout)
	if err != nil {
		return []byte{}, err
	}

	pointCloud, ok := untyped.([]byte)
	if !ok {
		return []byte{}, errors.New("unable to cast response from mapfacade to a byte slice")
	}

	return pointCloud, nil
}

// InternalState returns a serialized snapshot of the sparse map.
func (mf *MapFacade) InternalState(ctx context.Context, timeout time.Duration) ([]byte, error) {
	untyped, err := mf.request(ctx, internalState, emptyRequestParams, timeout)
	if err != nil {
		return []byte{}, err
	}

	snapshot, ok := untyped.([]byte)
	if !ok {
		return []byte{}, errors.New("unable to cast response from mapfacade to a byte slice")
	}

	return snapshot, nil
}

// Stats returns the map's allocation counters.
func (mf *MapFacade) Stats(ctx context.Context, timeout time.Duration) (Stats, error) {
	untyped, err := mf.request(ctx, stats, emptyRequestParams, timeout)
	if err != nil {
		return Stats{}, err
	}

	counters, ok := untyped.(Stats)
	if !ok {
		return Stats{}, errors.New("unable to cast response from mapfacade to a stats struct")
	}

	return counters, nil
}

// doWork provides the logic to run the correct map operation with the correct input.
func (r *Request) doWork(
	mf *MapFacade,
) (interface{}, error) {
	switch r.requestType {
	case integratePointCloud:
		sensorToWorld, ok := r.requestParams[sensorPose].(pose.Stamped)
		if !ok {
			return nil, errors.New("could not cast inputted pose to type pose.Stamped")
		}

		cloud, ok := r.requestParams[sensorCloud].(pointcloud.PointCloud)
		if !ok {
			return nil, errors.New("could not cast inputted cloud to type pointcloud.PointCloud")
		}

		if err := mf.integrator.IntegratePointCloud(sensorToWorld.Pose, cloud, mf.voxelMap); err != nil {
			return nil, err
		}
		mf.latestPose = &sensorToWorld
		return nil, nil
	case position:
		if mf.latestPose == nil {
			return nil, ErrNoPoseResolvedYet
		}
		return *mf.latestPose, nil
	case pointCloudMap:
		return mf.exporter.PCD(mf.voxelMap)
	case internalState:
		return mf.voxelMap.Snapshot()
	case stats:
		return mf.computeStats(), nil
	}
	return nil, fmt.Errorf("no worktype found for: %v", r.requestType)
}

func (mf *MapFacade) computeStats() Stats {
	counters := Stats{NumBlocks: mf.voxelMap.NumAllocatedBlocks()}
	for _, idx := range mf.voxelMap.AllAllocatedIndices() {
		block, ok := mf.voxelMap.BlockIfExists(idx)
		if !ok {
			continue
		}
		for i := 0; i < block.NumVoxels(); i++ {
			if block.VoxelByLinearIndex(i).Observed {
				counters.NumObservedVoxels++
			}
		}
	}
	return counters
}

// request wraps calls onto the worker goroutine. This function requires the
// caller to know which RequestTypes require casting to which response values.
func (mf *MapFacade) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := Request{
		responseChan:  make(chan Response, 1),
		requestType:   requestType,
		requestParams: inputs,
	}

	// wait until the worker can take the request (and timeout if needed)
	select {
	case mf.requestChan <- req:
		select {
		case response := <-req.responseChan:
			return response.result, response.err
		case <-ctx.Done():
			msg := "timeout reading from voxel map worker"
			return nil, multierr.Combine(errors.New(msg), ctx.Err())
		}
	case <-ctx.Done():
		msg := "timeout writing to voxel map worker"
		return nil, multierr.Combine(errors.New(msg), ctx.Err())
	}
}

// StartWorker starts the background goroutine that is responsible for
// ensuring only one map operation is running at a time.
func (mf *MapFacade) StartWorker(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case workToDo := <-mf.requestChan:
				result, err := workToDo.doWork(mf)
				workToDo.responseChan <- Response{result: result, err: err}
			}
		}
	}()
}
