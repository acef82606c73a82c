package tsdf

import (
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const (
	// DefaultVoxelsPerSide is the default block side length in voxels.
	DefaultVoxelsPerSide = 16
	// DefaultResolutionMeters is the default voxel edge length in meters.
	DefaultResolutionMeters = 0.2
)

// Map is a sparse voxel map: a mapping from BlockIndex to Block with
// allocate-on-demand lookup. The internal mutex makes allocation and
// iteration safe against each other; voxel-level writes are expected to be
// serialized by the caller (the mapfacade worker funnels all integration and
// export through a single goroutine).
type Map struct {
	mu            sync.RWMutex
	voxelsPerSide int
	resolution    float64
	blocks        map[BlockIndex]*Block
}

// NewMap validates the resolution parameters and returns an empty map.
// Invalid parameters are a construction-time failure; no ingestion may begin
// against a map that was never valid.
func NewMap(voxelsPerSide int, resolution float64) (*Map, error) {
	if voxelsPerSide <= 0 {
		return nil, errors.Errorf("voxels per side must be positive, got %d", voxelsPerSide)
	}
	if resolution <= 0 {
		return nil, errors.Errorf("voxel resolution must be positive, got %f", resolution)
	}
	return &Map{
		voxelsPerSide: voxelsPerSide,
		resolution:    resolution,
		blocks:        make(map[BlockIndex]*Block),
	}, nil
}

// VoxelsPerSide returns the block side length in voxels.
func (m *Map) VoxelsPerSide() int {
	return m.voxelsPerSide
}

// Resolution returns the voxel edge length.
func (m *Map) Resolution() float64 {
	return m.resolution
}

// VoxelsPerBlock returns the number of voxels in each block.
func (m *Map) VoxelsPerBlock() int {
	return m.voxelsPerSide * m.voxelsPerSide * m.voxelsPerSide
}

// BlockEdgeLength returns the world-space edge length of one block.
func (m *Map) BlockEdgeLength() float64 {
	return float64(m.voxelsPerSide) * m.resolution
}

// GetOrAllocateBlock returns the block at the given index, allocating a
// zero-initialized block if none exists yet. Allocation is all-or-nothing:
// the block is fully initialized before it is inserted.
func (m *Map) GetOrAllocateBlock(idx BlockIndex) *Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block, ok := m.blocks[idx]; ok {
		return block
	}
	block := newBlock(m.voxelsPerSide)
	m.blocks[idx] = block
	return block
}

// BlockIfExists returns the block at the given index if it has been
// allocated.
func (m *Map) BlockIfExists(idx BlockIndex) (*Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.blocks[idx]
	return block, ok
}

// NumAllocatedBlocks returns the number of allocated blocks.
func (m *Map) NumAllocatedBlocks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// AllAllocatedIndices returns a snapshot of every allocated block index,
// sorted by X, then Y, then Z. Sorting costs O(k log k) on export only and
// makes traversal order reproducible across runs, not just within one.
func (m *Map) AllAllocatedIndices() []BlockIndex {
	m.mu.RLock()
	indices := make([]BlockIndex, 0, len(m.blocks))
	for idx := range m.blocks {
		indices = append(indices, idx)
	}
	m.mu.RUnlock()

	sort.Slice(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return indices
}

// BlockIndexFromPoint returns the index of the block containing the given
// world coordinate.
func (m *Map) BlockIndexFromPoint(p r3.Vector) BlockIndex {
	edge := m.BlockEdgeLength()
	return BlockIndex{
		X: int64(math.Floor(p.X / edge)),
		Y: int64(math.Floor(p.Y / edge)),
		Z: int64(math.Floor(p.Z / edge)),
	}
}

// VoxelIndicesFromPoint returns the block index and local linear voxel index
// containing the given world coordinate.
func (m *Map) VoxelIndicesFromPoint(p r3.Vector) (BlockIndex, int) {
	idx := m.BlockIndexFromPoint(p)
	origin := idx.origin(m.BlockEdgeLength())
	x := localGridIndex(p.X-origin.X, m.resolution, m.voxelsPerSide)
	y := localGridIndex(p.Y-origin.Y, m.resolution, m.voxelsPerSide)
	z := localGridIndex(p.Z-origin.Z, m.resolution, m.voxelsPerSide)
	return idx, linearIndexOf(x, y, z, m.voxelsPerSide)
}

// localGridIndex converts an offset from the block origin into a local grid
// coordinate, clamped so float error at the block boundary cannot index out
// of the block.
func localGridIndex(offset, resolution float64, voxelsPerSide int) int {
	i := int(math.Floor(offset / resolution))
	if i < 0 {
		return 0
	}
	if i >= voxelsPerSide {
		return voxelsPerSide - 1
	}
	return i
}

// WorldCoordinateOf returns the world coordinate of the voxel at the given
// block index and local linear index. It is the inverse of
// VoxelIndicesFromPoint: blockOrigin + unravel(linear) * resolution.
func (m *Map) WorldCoordinateOf(idx BlockIndex, linear int) r3.Vector {
	origin := idx.origin(m.BlockEdgeLength())
	x, y, z := unravelLinearIndex(linear, m.voxelsPerSide)
	return r3.Vector{
		X: origin.X + float64(x)*m.resolution,
		Y: origin.Y + float64(y)*m.resolution,
		Z: origin.Z + float64(z)*m.resolution,
	}
}
