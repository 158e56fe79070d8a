package chunkstore

import (
	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
)

// ChunkManager owns chunks keyed by ChunkCoord. All operations are
// single-threaded and must be externally synchronized, matching the
// teacher's single-owner ECS resource pattern rather than adding internal
// locking that no caller here needs.
type ChunkManager struct {
	chunks   map[ChunkCoord]*Chunk
	registry *blockreg.Registry

	unknownBlockIdPolicy UnknownBlockIdPolicy
	unknownBlockIdFill   blockreg.BlockId
}

// NewChunkManager returns an empty manager. registry may be set later via
// SetRegistry. LoadChunk defaults to UnknownBlockIdFail until
// SetUnknownBlockIdPolicy installs a more permissive one.
func NewChunkManager() *ChunkManager {
	return &ChunkManager{chunks: make(map[ChunkCoord]*Chunk)}
}

// SetRegistry installs the block registry used for opacity accounting.
func (m *ChunkManager) SetRegistry(registry *blockreg.Registry) {
	m.registry = registry
}

// SetUnknownBlockIdPolicy controls how LoadChunk treats a decoded block id
// absent from the registry. placeholderId is only consulted under
// UnknownBlockIdPlaceholder.
func (m *ChunkManager) SetUnknownBlockIdPolicy(policy UnknownBlockIdPolicy, placeholderId blockreg.BlockId) {
	m.unknownBlockIdPolicy = policy
	m.unknownBlockIdFill = placeholderId
}

// GetChunk returns the chunk at coord, or nil if unloaded.
func (m *ChunkManager) GetChunk(coord ChunkCoord) *Chunk {
	return m.chunks[coord]
}

// HasChunk reports whether coord is loaded.
func (m *ChunkManager) HasChunk(coord ChunkCoord) bool {
	_, ok := m.chunks[coord]
	return ok
}

// GetOrCreateChunk returns the chunk at coord, creating an empty one if
// necessary.
func (m *ChunkManager) GetOrCreateChunk(coord ChunkCoord) *Chunk {
	c, ok := m.chunks[coord]
	if !ok {
		c = NewChunk(coord)
		m.chunks[coord] = c
	}
	return c
}

// LoadChunk installs a chunk decoded from bytes at coord, overwriting any
// chunk already loaded there.
func (m *ChunkManager) LoadChunk(coord ChunkCoord, data []byte) error {
	c, err := Deserialize(data, m.registry, m.unknownBlockIdPolicy, m.unknownBlockIdFill)
	if err != nil {
		return err
	}
	c.Coord = coord
	m.chunks[coord] = c
	return nil
}

// UnloadChunk drops coord from the manager without persisting it.
func (m *ChunkManager) UnloadChunk(coord ChunkCoord) {
	delete(m.chunks, coord)
}

// Clear unloads every chunk.
func (m *ChunkManager) Clear() {
	m.chunks = make(map[ChunkCoord]*Chunk)
}

// LoadedChunkCount returns the number of resident chunks.
func (m *ChunkManager) LoadedChunkCount() int {
	return len(m.chunks)
}

// ForEachChunk calls fn for every resident chunk. fn must not mutate the
// chunk set.
func (m *ChunkManager) ForEachChunk(fn func(coord ChunkCoord, c *Chunk)) {
	for coord, c := range m.chunks {
		fn(coord, c)
	}
}

// GetDirtyChunks returns the coordinates of every chunk with Dirty() true.
func (m *ChunkManager) GetDirtyChunks() []ChunkCoord {
	var out []ChunkCoord
	for coord, c := range m.chunks {
		if c.Dirty() {
			out = append(out, coord)
		}
	}
	return out
}

// ClearDirtyFlags clears the Dirty flag on every resident chunk.
func (m *ChunkManager) ClearDirtyFlags() {
	for _, c := range m.chunks {
		c.ClearDirty()
	}
}

// GetBlock returns the block at world coordinates, or Air if the owning
// chunk is unloaded.
func (m *ChunkManager) GetBlock(wx, wy, wz int32) BlockState {
	coord := WorldToChunk(wx, wy, wz)
	c, ok := m.chunks[coord]
	if !ok {
		return Air
	}
	lx, ly, lz := WorldToLocal(wx, wy, wz)
	return c.GetBlock(lx, ly, lz)
}

// SetBlock writes state at world coordinates, creating the owning chunk if
// necessary, and marks each face-adjacent neighbor chunk dirty when the
// local coordinate lies on the corresponding chunk boundary (0 or
// ChunkSize-1). This keeps mesh rebuilds consistent across chunk seams.
func (m *ChunkManager) SetBlock(wx, wy, wz int32, state BlockState) {
	coord := WorldToChunk(wx, wy, wz)
	c := m.GetOrCreateChunk(coord)
	lx, ly, lz := WorldToLocal(wx, wy, wz)
	if !c.SetBlock(lx, ly, lz, state, m.registry) {
		return
	}

	if lx == 0 {
		m.markNeighborDirty(coord.Add(-1, 0, 0))
	} else if lx == ChunkSize-1 {
		m.markNeighborDirty(coord.Add(1, 0, 0))
	}
	if ly == 0 {
		m.markNeighborDirty(coord.Add(0, -1, 0))
	} else if ly == ChunkSize-1 {
		m.markNeighborDirty(coord.Add(0, 1, 0))
	}
	if lz == 0 {
		m.markNeighborDirty(coord.Add(0, 0, -1))
	} else if lz == ChunkSize-1 {
		m.markNeighborDirty(coord.Add(0, 0, 1))
	}
}

func (m *ChunkManager) markNeighborDirty(coord ChunkCoord) {
	if n, ok := m.chunks[coord]; ok {
		n.MarkDirty()
	}
}
