// Package tsdf implements a sparse, block-structured signed-distance-field
// voxel map. Storage is allocated per block, on the first observation that
// touches the block, so the map can cover an unbounded volume while only
// materializing the space a robot has actually seen.
package tsdf

import (
	"github.com/golang/geo/r3"
)

// BlockIndex identifies a block's position in the infinite virtual grid.
// It is derived from a world coordinate by flooring against the block edge
// length and is used purely as a map key.
type BlockIndex struct {
	X, Y, Z int64
}

// Voxel is the per-voxel SDF record. Weight accumulates observation
// confidence for future weighted updates; Observed reports whether any
// integration has touched the voxel.
type Voxel struct {
	Distance float64
	Weight   float64
	Observed bool
}

// Block is a fixed-size cube of voxels, the map's unit of allocation. Blocks
// are owned exclusively by the map entry that allocated them and hold their
// voxels in a flat slice ordered x-fastest, then y, then z.
type Block struct {
	voxelsPerSide int
	voxels        []Voxel
}

func newBlock(voxelsPerSide int) *Block {
	return &Block{
		voxelsPerSide: voxelsPerSide,
		voxels:        make([]Voxel, voxelsPerSide*voxelsPerSide*voxelsPerSide),
	}
}

// NumVoxels returns the number of voxels in the block.
func (b *Block) NumVoxels() int {
	return len(b.voxels)
}

// VoxelByLinearIndex returns the voxel at the given linear index.
func (b *Block) VoxelByLinearIndex(i int) Voxel {
	return b.voxels[i]
}

// SetVoxelByLinearIndex overwrites the voxel at the given linear index.
func (b *Block) SetVoxelByLinearIndex(i int, v Voxel) {
	b.voxels[i] = v
}

// UpdateVoxelByLinearIndex applies fn to the voxel at the given linear index
// in place.
func (b *Block) UpdateVoxelByLinearIndex(i int, fn func(*Voxel)) {
	fn(&b.voxels[i])
}

// unravelLinearIndex converts a linear voxel index into its local (x, y, z)
// grid coordinates, x-fastest.
func unravelLinearIndex(i, voxelsPerSide int) (x, y, z int) {
	x = i % voxelsPerSide
	y = (i / voxelsPerSide) % voxelsPerSide
	z = i / (voxelsPerSide * voxelsPerSide)
	return x, y, z
}

// linearIndexOf converts local (x, y, z) grid coordinates into a linear
// voxel index, x-fastest.
func linearIndexOf(x, y, z, voxelsPerSide int) int {
	return x + voxelsPerSide*(y+voxelsPerSide*z)
}

// origin returns the world coordinate of the block's minimum corner.
func (idx BlockIndex) origin(blockEdgeLength float64) r3.Vector {
	return r3.Vector{
		X: float64(idx.X) * blockEdgeLength,
		Y: float64(idx.Y) * blockEdgeLength,
		Z: float64(idx.Z) * blockEdgeLength,
	}
}
