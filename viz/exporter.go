// Package viz traverses the sparse voxel map to produce visualization
// point clouds where intensity carries the stored signed distance.
package viz

import (
	"bytes"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-tsdf/tsdf"
)

// Sample is one exported voxel: its world coordinate and stored signed
// distance.
type Sample struct {
	Position r3.Vector
	Distance float64
}

// Exporter produces visualization samples from a map. Traversal is
// deterministic: blocks in sorted index order, voxels in linear order. The
// exporter never mutates the map; concurrent voxel writes must be excluded
// by the caller (the mapfacade worker does this).
type Exporter struct {
	maxDistance float64
	verbose     bool
	logger      logging.Logger
}

// NewExporter returns an Exporter. A positive maxDistance drops voxels whose
// absolute stored distance exceeds it; zero or negative disables filtering
// and every allocated voxel is emitted.
func NewExporter(maxDistance float64, logger logging.Logger) *Exporter {
	if maxDistance <= 0 {
		logger.Debug("no max distance configured, exporting every allocated voxel unfiltered")
	}
	return &Exporter{
		maxDistance: maxDistance,
		verbose:     logger.Level() == zapcore.DebugLevel,
		logger:      logger,
	}
}

// Samples walks every allocated block and emits one sample per voxel,
// subject to the distance filter. With the filter disabled the result holds
// exactly numAllocatedBlocks * voxelsPerBlock samples.
func (e *Exporter) Samples(m *tsdf.Map) []Sample {
	indices := m.AllAllocatedIndices()
	voxelsPerBlock := m.VoxelsPerBlock()
	samples := make([]Sample, 0, len(indices)*voxelsPerBlock)

	for _, idx := range indices {
		block, ok := m.BlockIfExists(idx)
		if !ok {
			continue
		}
		for i := 0; i < voxelsPerBlock; i++ {
			distance := block.VoxelByLinearIndex(i).Distance
			if e.maxDistance > 0 && math.Abs(distance) > e.maxDistance {
				continue
			}
			samples = append(samples, Sample{
				Position: m.WorldCoordinateOf(idx, i),
				Distance: distance,
			})
		}
	}
	if e.verbose {
		e.logger.Debugf("exported %d samples from %d blocks", len(samples), len(indices))
	}
	return samples
}

// PointCloud converts the map's samples into a point cloud whose per-point
// value is the stored distance in integer millimeters.
func (e *Exporter) PointCloud(m *tsdf.Map) (pointcloud.PointCloud, error) {
	samples := e.Samples(m)
	cloud := pointcloud.New()
	for _, sample := range samples {
		distanceMm := int(math.Round(sample.Distance * 1000))
		if err := cloud.Set(sample.Position, pointcloud.NewValueData(distanceMm)); err != nil {
			return nil, errors.Wrap(err, "building visualization point cloud")
		}
	}
	return cloud, nil
}

// PCD returns the map's visualization point cloud encoded as binary PCD.
func (e *Exporter) PCD(m *tsdf.Map) ([]byte, error) {
	cloud, err := e.PointCloud(m)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := pointcloud.ToPCD(cloud, buf, pointcloud.PCDBinary); err != nil {
		return nil, errors.Wrap(err, "ToPCD error")
	}
	return buf.Bytes(), nil
}
