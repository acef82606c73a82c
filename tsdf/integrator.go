package tsdf

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// Integrator fuses one sensor-frame point cloud into the map given the
// sensor-to-world pose the cloud was captured at. Implementations may assume
// they are the only writer for the duration of the call.
type Integrator interface {
	IntegratePointCloud(sensorToWorld spatialmath.Pose, cloud pointcloud.PointCloud, m *Map) error
}

// MarkingIntegrator transforms each point into the world frame, allocates
// the block containing it and records a unit-weight observation at the
// containing voxel. It does not carry distance information along the sensor
// ray.
//
// TODO: replace with a raycasting update that distributes weighted signed
// distances along each ray once the update formula is settled.
type MarkingIntegrator struct{}

// NewMarkingIntegrator returns a MarkingIntegrator.
func NewMarkingIntegrator() *MarkingIntegrator {
	return &MarkingIntegrator{}
}

// IntegratePointCloud allocates and marks the voxel containing every point
// of the cloud, transformed into the world frame.
func (mi *MarkingIntegrator) IntegratePointCloud(
	sensorToWorld spatialmath.Pose,
	cloud pointcloud.PointCloud,
	m *Map,
) error {
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		worldPoint := spatialmath.Compose(sensorToWorld, spatialmath.NewPoseFromPoint(p)).Point()
		blockIdx, linear := m.VoxelIndicesFromPoint(worldPoint)
		block := m.GetOrAllocateBlock(blockIdx)
		block.UpdateVoxelByLinearIndex(linear, func(v *Voxel) {
			v.Weight++
			v.Observed = true
		})
		return true
	})
	return nil
}
