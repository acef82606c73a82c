// Package viamtsdf implements incremental fusion of posed lidar point
// clouds into a sparse signed-distance-field voxel map, served as a Viam
// SLAM service.
package viamtsdf

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/rdk/spatialmath"

	tsdfConfig "github.com/viam-modules/viam-tsdf/config"
	"github.com/viam-modules/viam-tsdf/mapfacade"
	"github.com/viam-modules/viam-tsdf/pose"
	"github.com/viam-modules/viam-tsdf/sensorprocess"
	s "github.com/viam-modules/viam-tsdf/sensors"
	"github.com/viam-modules/viam-tsdf/tsdf"
	"github.com/viam-modules/viam-tsdf/viz"
)

// Model is the model name of the TSDF mapping service.
var (
	Model = resource.NewModel("viam", "slam", "tsdf")
	// ErrClosed denotes that the slam service method was called on a closed slam resource.
	ErrClosed = errors.Errorf("resource (%s) is closed", Model.String())
)

const (
	defaultLidarDataFrequencyHz   = 5
	defaultWorldFrame             = "world"
	defaultTransformToleranceMsec = 250
	defaultMapFacadeTimeout       = 1 * time.Minute
	chunkSizeBytes                = 1 * 1024 * 1024
)

func init() {
	resource.RegisterService(slam.API, Model, resource.Registration[slam.Service, *tsdfConfig.Config]{
		Constructor: func(
			ctx context.Context,
			deps resource.Dependencies,
			c resource.Config,
			logger logging.Logger,
		) (slam.Service, error) {
			return New(
				ctx,
				deps,
				c,
				logger,
				defaultMapFacadeTimeout,
				nil,
				nil,
			)
		},
	})
}

// New returns a new TSDF mapping service for the given robot.
func New(
	ctx context.Context,
	deps resource.Dependencies,
	c resource.Config,
	logger logging.Logger,
	mapFacadeTimeout time.Duration,
	testTimedLidarOverride s.TimedLidar,
	testTransformLookupOverride pose.Lookup,
) (slam.Service, error) {
	ctx, span := trace.StartSpan(ctx, "viamtsdf::tsdfService::New")
	defer span.End()

	svcConfig, err := resource.NativeConfig[*tsdfConfig.Config](c)
	if err != nil {
		return nil, err
	}

	optionalConfigParams, err := tsdfConfig.GetOptionalParameters(
		svcConfig,
		defaultLidarDataFrequencyHz,
		defaultWorldFrame,
		tsdf.DefaultVoxelsPerSide,
		tsdf.DefaultResolutionMeters,
		defaultTransformToleranceMsec,
		logger,
	)
	if err != nil {
		return nil, err
	}

	timedLidar, err := s.NewLidar(ctx, deps, optionalConfigParams.LidarName,
		optionalConfigParams.LidarDataFrequencyHz, logger)
	if err != nil {
		return nil, err
	}

	// Override the sensor for testing if the override sensor is not nil
	if testTimedLidarOverride != nil {
		timedLidar = testTimedLidarOverride
	}

	// Transforms are published into an in-memory buffer unless a lookup
	// service is injected for testing.
	var transformBuffer *pose.Buffer
	var transformLookup pose.Lookup
	if testTransformLookupOverride != nil {
		transformLookup = testTransformLookupOverride
	} else {
		transformBuffer = pose.NewBuffer(
			time.Duration(optionalConfigParams.TransformToleranceMsec)*time.Millisecond,
			pose.DefaultBufferCapacity,
		)
		transformLookup = transformBuffer
	}

	// Need to be able to shut down the sensor process before the map facade
	cancelSensorProcessCtx, cancelSensorProcessFunc := context.WithCancel(context.Background())
	cancelMapFacadeCtx, cancelMapFacadeFunc := context.WithCancel(context.Background())

	tsdfSvc := &TSDFService{
		Named:                   c.ResourceName().AsNamed(),
		lidar:                   timedLidar,
		worldFrame:              optionalConfigParams.WorldFrame,
		voxelsPerSide:           optionalConfigParams.VoxelsPerSide,
		resolutionMeters:        optionalConfigParams.ResolutionMeters,
		maxDistanceMeters:       optionalConfigParams.MaxDistanceMeters,
		mapRateSec:              optionalConfigParams.MapRateSec,
		dataDirectory:           optionalConfigParams.DataDirectory,
		transformBuffer:         transformBuffer,
		resolver:                pose.NewResolver(transformLookup, logger),
		mapFacadeTimeout:        mapFacadeTimeout,
		cancelSensorProcessFunc: cancelSensorProcessFunc,
		cancelMapFacadeFunc:     cancelMapFacadeFunc,
		logger:                  logger,
		mapTimestamp:            time.Now().UTC(),
	}

	defer func() {
		if err != nil {
			logger.Errorw("New() hit error, closing...", "error", err)
			if err := tsdfSvc.Close(ctx); err != nil {
				logger.Errorw("error closing out after error", "error", err)
			}
		}
	}()

	if err = initMapFacade(cancelMapFacadeCtx, tsdfSvc); err != nil {
		return nil, err
	}

	initSensorProcess(cancelSensorProcessCtx, tsdfSvc)

	if tsdfSvc.mapRateSec > 0 && tsdfSvc.dataDirectory != "" {
		initMapDumpProcess(cancelSensorProcessCtx, tsdfSvc)
	}

	return tsdfSvc, nil
}

// initMapFacade validates the resolution parameters, builds the voxel map
// and starts the worker goroutine that serializes access to it. Invalid
// parameters are fatal at construction, before any ingestion occurs.
func initMapFacade(ctx context.Context, tsdfSvc *TSDFService) error {
	voxelMap, err := tsdf.NewMap(tsdfSvc.voxelsPerSide, tsdfSvc.resolutionMeters)
	if err != nil {
		tsdfSvc.logger.Errorw("voxel map construction failed", "error", err)
		return err
	}

	exporter := viz.NewExporter(tsdfSvc.maxDistanceMeters, tsdfSvc.logger)
	mf := mapfacade.New(voxelMap, tsdf.NewMarkingIntegrator(), exporter)
	mf.StartWorker(ctx, &tsdfSvc.mapFacadeWorkers)
	tsdfSvc.mapFacade = &mf
	return nil
}

func initSensorProcess(cancelCtx context.Context, tsdfSvc *TSDFService) {
	spConfig := sensorprocess.Config{
		MapFacade:  tsdfSvc.mapFacade,
		Lidar:      tsdfSvc.lidar,
		Resolver:   tsdfSvc.resolver,
		WorldFrame: tsdfSvc.worldFrame,
		Timeout:    tsdfSvc.mapFacadeTimeout,
		Logger:     tsdfSvc.logger,
	}

	tsdfSvc.sensorProcessWorkers.Add(1)
	go func() {
		defer tsdfSvc.sensorProcessWorkers.Done()
		spConfig.StartLidar(cancelCtx)
	}()
}

// initMapDumpProcess periodically writes the visualization point cloud to
// the data directory as timestamped PCD files.
func initMapDumpProcess(cancelCtx context.Context, tsdfSvc *TSDFService) {
	tsdfSvc.sensorProcessWorkers.Add(1)
	go func() {
		defer tsdfSvc.sensorProcessWorkers.Done()
		ticker := time.NewTicker(time.Duration(tsdfSvc.mapRateSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-ticker.C:
				pcd, err := tsdfSvc.mapFacade.PointCloudMap(cancelCtx, tsdfSvc.mapFacadeTimeout)
				if err != nil {
					tsdfSvc.logger.Warnw("map dump export failed", "error", err)
					continue
				}
				filename := viz.CreateTimestampFilename(
					tsdfSvc.dataDirectory, tsdfSvc.lidar.Name(), ".pcd", time.Now().UTC())
				if err := viz.WriteBytesToFile(pcd, filename); err != nil {
					tsdfSvc.logger.Warnw("map dump write failed", "error", err, "filename", filename)
				}
			}
		}
	}()
}

// TSDFService is the structure of the TSDF mapping service.
type TSDFService struct {
	resource.Named
	resource.AlwaysRebuild
	mu     sync.Mutex
	closed bool

	lidar             s.TimedLidar
	worldFrame        string
	voxelsPerSide     int
	resolutionMeters  float64
	maxDistanceMeters float64
	mapRateSec        int
	dataDirectory     string

	transformBuffer *pose.Buffer
	resolver        *pose.Resolver

	mapFacade        mapfacade.Interface
	mapFacadeTimeout time.Duration

	cancelSensorProcessFunc func()
	cancelMapFacadeFunc     func()
	logger                  logging.Logger
	sensorProcessWorkers    sync.WaitGroup
	mapFacadeWorkers        sync.WaitGroup

	mapTimestamp time.Time
}

// Position returns the pose of the most recently integrated point cloud in
// the world frame, with the lidar name as the component reference.
func (tsdfSvc *TSDFService) Position(ctx context.Context) (spatialmath.Pose, string, error) {
	ctx, span := trace.StartSpan(ctx, "viamtsdf::TSDFService::Position")
	defer span.End()
	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("Position called after closed")
		return nil, "", ErrClosed
	}

	pos, err := tsdfSvc.mapFacade.Position(ctx, tsdfSvc.mapFacadeTimeout)
	if err != nil {
		return nil, "", err
	}

	return pos.Pose, tsdfSvc.lidar.Name(), nil
}

// PointCloudMap returns a callback function which will return the next chunk
// of the current visualization point cloud, where per-point intensity
// carries the stored signed distance.
func (tsdfSvc *TSDFService) PointCloudMap(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "viamtsdf::TSDFService::PointCloudMap")
	defer span.End()
	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("PointCloudMap called after closed")
		return nil, ErrClosed
	}

	pcd, err := tsdfSvc.mapFacade.PointCloudMap(ctx, tsdfSvc.mapFacadeTimeout)
	if err != nil {
		return nil, err
	}
	return toChunkedFunc(pcd), nil
}

// InternalState returns a callback function which will return the next chunk
// of the serialized sparse voxel map.
func (tsdfSvc *TSDFService) InternalState(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "viamtsdf::TSDFService::InternalState")
	defer span.End()
	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("InternalState called after closed")
		return nil, ErrClosed
	}

	snapshot, err := tsdfSvc.mapFacade.InternalState(ctx, tsdfSvc.mapFacadeTimeout)
	if err != nil {
		return nil, err
	}

	return toChunkedFunc(snapshot), nil
}

func toChunkedFunc(b []byte) func() ([]byte, error) {
	chunk := make([]byte, chunkSizeBytes)

	reader := bytes.NewReader(b)

	f := func() ([]byte, error) {
		bytesRead, err := reader.Read(chunk)
		if err != nil {
			return nil, err
		}
		return chunk[:bytesRead], err
	}
	return f
}

// LatestMapInfo returns a new timestamp every time it is called, to signal
// that the map should be updated.
func (tsdfSvc *TSDFService) LatestMapInfo(ctx context.Context) (time.Time, error) {
	_, span := trace.StartSpan(ctx, "viamtsdf::TSDFService::LatestMapInfo")
	defer span.End()
	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("LatestMapInfo called after closed")
		return time.Time{}, ErrClosed
	}

	tsdfSvc.mapTimestamp = time.Now().UTC()
	return tsdfSvc.mapTimestamp, nil
}

// DoCommand receives arbitrary commands. Supported commands:
// publish_transform (feed the transform buffer), fallback_count and stats.
func (tsdfSvc *TSDFService) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("DoCommand called after closed")
		return nil, ErrClosed
	}

	if transform, ok := req[PublishTransformCommand]; ok {
		if tsdfSvc.transformBuffer == nil {
			return nil, errors.New("no transform buffer configured")
		}
		stamped, err := parseTransformCommand(transform)
		if err != nil {
			return nil, err
		}
		tsdfSvc.transformBuffer.Add(stamped.fromFrame, stamped.toFrame, stamped.at, stamped.pose)
		return map[string]interface{}{PublishTransformCommand: true}, nil
	}

	if _, ok := req[FallbackCountCommand]; ok {
		return map[string]interface{}{FallbackCountCommand: tsdfSvc.resolver.FallbackCount()}, nil
	}

	if _, ok := req[StatsCommand]; ok {
		counters, err := tsdfSvc.mapFacade.Stats(ctx, tsdfSvc.mapFacadeTimeout)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"num_blocks":          counters.NumBlocks,
			"num_observed_voxels": counters.NumObservedVoxels,
		}, nil
	}

	return nil, errors.Errorf("unsupported DoCommand request: %v", req)
}

// Close out of all TSDF mapping related processes.
func (tsdfSvc *TSDFService) Close(ctx context.Context) error {
	tsdfSvc.mu.Lock()
	defer tsdfSvc.mu.Unlock()

	tsdfSvc.logger.Info("Closing TSDF mapping module")

	if tsdfSvc.closed {
		tsdfSvc.logger.Warn("Close() called multiple times")
		return nil
	}
	// stop sensor process workers before the map facade worker
	tsdfSvc.cancelSensorProcessFunc()
	tsdfSvc.sensorProcessWorkers.Wait()

	tsdfSvc.cancelMapFacadeFunc()
	tsdfSvc.mapFacadeWorkers.Wait()
	tsdfSvc.closed = true

	tsdfSvc.logger.Info("Closing complete")
	return nil
}
