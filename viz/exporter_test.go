package viz

import (
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/viam-modules/viam-tsdf/tsdf"
)

func newTestMap(t *testing.T) *tsdf.Map {
	t.Helper()
	m, err := tsdf.NewMap(2, 0.5)
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestSamples(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("empty map exports nothing", func(t *testing.T) {
		exporter := NewExporter(0, logger)
		test.That(t, exporter.Samples(newTestMap(t)), test.ShouldBeEmpty)
	})

	t.Run("unfiltered export emits every voxel of every allocated block", func(t *testing.T) {
		m := newTestMap(t)
		m.GetOrAllocateBlock(tsdf.BlockIndex{X: 0, Y: 0, Z: 0})
		m.GetOrAllocateBlock(tsdf.BlockIndex{X: 3, Y: -1, Z: 2})

		exporter := NewExporter(0, logger)
		samples := exporter.Samples(m)
		test.That(t, len(samples), test.ShouldEqual, 2*m.VoxelsPerBlock())
	})

	t.Run("block traversal order is deterministic", func(t *testing.T) {
		m := newTestMap(t)
		m.GetOrAllocateBlock(tsdf.BlockIndex{X: 2, Y: 0, Z: 0})
		m.GetOrAllocateBlock(tsdf.BlockIndex{X: -1, Y: 0, Z: 0})

		exporter := NewExporter(0, logger)
		samples := exporter.Samples(m)
		// the block at X=-1 comes first; its first voxel sits at its origin
		test.That(t, samples[0].Position.X, test.ShouldEqual, -1.0)
		test.That(t, samples[m.VoxelsPerBlock()].Position.X, test.ShouldEqual, 2.0)
	})

	t.Run("max distance filter drops far voxels only", func(t *testing.T) {
		m := newTestMap(t)
		block := m.GetOrAllocateBlock(tsdf.BlockIndex{X: 0, Y: 0, Z: 0})
		block.SetVoxelByLinearIndex(0, tsdf.Voxel{Distance: 2.5, Observed: true})
		block.SetVoxelByLinearIndex(1, tsdf.Voxel{Distance: -2.5, Observed: true})
		block.SetVoxelByLinearIndex(2, tsdf.Voxel{Distance: 0.5, Observed: true})

		exporter := NewExporter(1.0, logger)
		samples := exporter.Samples(m)
		// both far voxels are dropped, positive and negative alike
		test.That(t, len(samples), test.ShouldEqual, m.VoxelsPerBlock()-2)
	})
}

func TestPointCloud(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("per-point value carries the distance in millimeters", func(t *testing.T) {
		m := newTestMap(t)
		block := m.GetOrAllocateBlock(tsdf.BlockIndex{X: 0, Y: 0, Z: 0})
		block.SetVoxelByLinearIndex(0, tsdf.Voxel{Distance: 0.123, Observed: true})

		exporter := NewExporter(0, logger)
		cloud, err := exporter.PointCloud(m)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cloud.Size(), test.ShouldEqual, m.VoxelsPerBlock())

		data, ok := cloud.At(0, 0, 0)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, data.Value(), test.ShouldEqual, 123)
	})

	t.Run("negative distances round to negative millimeters", func(t *testing.T) {
		m := newTestMap(t)
		block := m.GetOrAllocateBlock(tsdf.BlockIndex{X: 0, Y: 0, Z: 0})
		block.SetVoxelByLinearIndex(0, tsdf.Voxel{Distance: -0.75, Observed: true})

		exporter := NewExporter(0, logger)
		cloud, err := exporter.PointCloud(m)
		test.That(t, err, test.ShouldBeNil)

		data, ok := cloud.At(0, 0, 0)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, data.Value(), test.ShouldEqual, -750)
	})
}

func TestPCD(t *testing.T) {
	logger := logging.NewTestLogger(t)

	m := newTestMap(t)
	m.GetOrAllocateBlock(tsdf.BlockIndex{X: 0, Y: 0, Z: 0})

	exporter := NewExporter(0, logger)
	pcd, err := exporter.PCD(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(pcd), test.ShouldBeGreaterThan, 0)
	test.That(t, string(pcd[:11]), test.ShouldEqual, "VERSION .7\n")
}
