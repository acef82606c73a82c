package tsdf

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// snapshot is the serialized form of a Map. Only allocated blocks are
// recorded; the virtual grid is reconstructed from the resolution
// parameters.
type snapshot struct {
	VoxelsPerSide int
	Resolution    float64
	Blocks        map[BlockIndex][]Voxel
}

// Snapshot serializes the map's resolution parameters and all allocated
// blocks. The caller must ensure no voxel writes are in flight (the
// mapfacade worker provides this).
func (m *Map) Snapshot() ([]byte, error) {
	m.mu.RLock()
	snap := snapshot{
		VoxelsPerSide: m.voxelsPerSide,
		Resolution:    m.resolution,
		Blocks:        make(map[BlockIndex][]Voxel, len(m.blocks)),
	}
	for idx, block := range m.blocks {
		snap.Blocks[idx] = block.voxels
	}
	m.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encoding map snapshot")
	}
	return buf.Bytes(), nil
}

// MapFromSnapshot reconstructs a map from Snapshot output.
func MapFromSnapshot(data []byte) (*Map, error) {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decoding map snapshot")
	}

	m, err := NewMap(snap.VoxelsPerSide, snap.Resolution)
	if err != nil {
		return nil, err
	}
	for idx, voxels := range snap.Blocks {
		if len(voxels) != m.VoxelsPerBlock() {
			return nil, errors.Errorf("snapshot block %v has %d voxels, want %d",
				idx, len(voxels), m.VoxelsPerBlock())
		}
		block := m.GetOrAllocateBlock(idx)
		copy(block.voxels, voxels)
	}
	return m, nil
}
