package tsdf

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"
)

func TestMarkingIntegrator(t *testing.T) {
	integrator := NewMarkingIntegrator()

	t.Run("single point with identity pose", func(t *testing.T) {
		m, err := NewMap(16, 0.25)
		test.That(t, err, test.ShouldBeNil)

		cloud := pointcloud.New()
		test.That(t, cloud.Set(r3.Vector{X: 1, Y: 1, Z: 1}, pointcloud.NewBasicData()), test.ShouldBeNil)

		err = integrator.IntegratePointCloud(spatialmath.NewZeroPose(), cloud, m)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m.NumAllocatedBlocks(), test.ShouldEqual, 1)

		block, ok := m.BlockIfExists(BlockIndex{X: 0, Y: 0, Z: 0})
		test.That(t, ok, test.ShouldBeTrue)

		// local grid coordinates (4, 4, 4) at 0.25m resolution
		linear := 4 + 16*(4+16*4)
		voxel := block.VoxelByLinearIndex(linear)
		test.That(t, voxel.Observed, test.ShouldBeTrue)
		test.That(t, voxel.Weight, test.ShouldEqual, 1)
	})

	t.Run("repeated integration accumulates weight", func(t *testing.T) {
		m, err := NewMap(16, 0.25)
		test.That(t, err, test.ShouldBeNil)

		cloud := pointcloud.New()
		test.That(t, cloud.Set(r3.Vector{X: 1, Y: 1, Z: 1}, pointcloud.NewBasicData()), test.ShouldBeNil)

		test.That(t, integrator.IntegratePointCloud(spatialmath.NewZeroPose(), cloud, m), test.ShouldBeNil)
		test.That(t, integrator.IntegratePointCloud(spatialmath.NewZeroPose(), cloud, m), test.ShouldBeNil)
		test.That(t, m.NumAllocatedBlocks(), test.ShouldEqual, 1)

		block, _ := m.BlockIfExists(BlockIndex{X: 0, Y: 0, Z: 0})
		voxel := block.VoxelByLinearIndex(4 + 16*(4+16*4))
		test.That(t, voxel.Weight, test.ShouldEqual, 2)
	})

	t.Run("sensor pose translates points into the world frame", func(t *testing.T) {
		m, err := NewMap(16, 0.25)
		test.That(t, err, test.ShouldBeNil)

		cloud := pointcloud.New()
		test.That(t, cloud.Set(r3.Vector{X: 1, Y: 0, Z: 0}, pointcloud.NewBasicData()), test.ShouldBeNil)

		sensorToWorld := spatialmath.NewPoseFromPoint(r3.Vector{X: 4, Y: 0, Z: 0})
		test.That(t, integrator.IntegratePointCloud(sensorToWorld, cloud, m), test.ShouldBeNil)

		// the world point is (5, 0, 0), one block edge past block 1
		_, ok := m.BlockIfExists(BlockIndex{X: 1, Y: 0, Z: 0})
		test.That(t, ok, test.ShouldBeTrue)
		_, ok = m.BlockIfExists(BlockIndex{X: 0, Y: 0, Z: 0})
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("points in the same voxel allocate one block", func(t *testing.T) {
		m, err := NewMap(16, 0.25)
		test.That(t, err, test.ShouldBeNil)

		cloud := pointcloud.New()
		test.That(t, cloud.Set(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, pointcloud.NewBasicData()), test.ShouldBeNil)
		test.That(t, cloud.Set(r3.Vector{X: 0.2, Y: 0.2, Z: 0.2}, pointcloud.NewBasicData()), test.ShouldBeNil)

		test.That(t, integrator.IntegratePointCloud(spatialmath.NewZeroPose(), cloud, m), test.ShouldBeNil)
		test.That(t, m.NumAllocatedBlocks(), test.ShouldEqual, 1)
	})

	t.Run("empty cloud allocates nothing", func(t *testing.T) {
		m, err := NewMap(16, 0.25)
		test.That(t, err, test.ShouldBeNil)

		test.That(t, integrator.IntegratePointCloud(spatialmath.NewZeroPose(), pointcloud.New(), m), test.ShouldBeNil)
		test.That(t, m.NumAllocatedBlocks(), test.ShouldEqual, 0)
	})
}
