// Package chunkstore holds the sparse, subchunk-allocated block container:
// Chunk, ChunkManager, the LRU ChunkCache, and the span/snapshot types used
// to persist partial chunks. The subchunk layout is adapted from the
// teacher's sector/brick sparse voxel map, narrowed from a 4x4x4 brick grid
// of 8^3 bricks to the 2x2x2 grid of 16^3 subchunks this format calls for.
package chunkstore

import (
	"encoding/binary"
	"fmt"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

const (
	// ChunkSize is the edge length of a chunk in blocks.
	ChunkSize = 32
	// SubchunkSize is the edge length of one of the 8 octants inside a chunk.
	SubchunkSize = 16
	// SubchunksPerAxis is the number of subchunks along one chunk axis.
	SubchunksPerAxis = ChunkSize / SubchunkSize // 2

	// Volume is the number of blocks in a full chunk.
	Volume = ChunkSize * ChunkSize * ChunkSize
	// SubchunkVolume is the number of blocks in one subchunk.
	SubchunkVolume = SubchunkSize * SubchunkSize * SubchunkSize

	chunkMagic = "RCHK"
)

// BlockState is the per-voxel payload: a block id plus metadata and
// lighting, packed to 4 bytes on the wire.
type BlockState struct {
	Id         blockreg.BlockId
	Metadata   uint8
	SkyLight   uint8 // 0..15
	BlockLight uint8 // 0..15
}

// Air is the zero value of BlockState.
var Air = BlockState{}

func (s BlockState) isAir() bool { return s.Id == blockreg.Air }

func (s BlockState) packLight() uint8 {
	return (s.SkyLight & 0xF) | ((s.BlockLight & 0xF) << 4)
}

func unpackLight(b uint8) (sky, block uint8) {
	return b & 0xF, (b >> 4) & 0xF
}

// ChunkCoord is a signed chunk-space coordinate.
type ChunkCoord struct {
	X, Y, Z int32
}

func (c ChunkCoord) Add(dx, dy, dz int32) ChunkCoord {
	return ChunkCoord{c.X + dx, c.Y + dy, c.Z + dz}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// WorldToChunk converts a world-space block coordinate to its owning chunk
// coordinate using floor division.
func WorldToChunk(wx, wy, wz int32) ChunkCoord {
	return ChunkCoord{
		floorDiv(wx, ChunkSize),
		floorDiv(wy, ChunkSize),
		floorDiv(wz, ChunkSize),
	}
}

// WorldToLocal converts a world-space block coordinate to its chunk-local
// coordinate using non-negative modulo.
func WorldToLocal(wx, wy, wz int32) (lx, ly, lz int32) {
	return floorMod(wx, ChunkSize), floorMod(wy, ChunkSize), floorMod(wz, ChunkSize)
}

func subchunkIndex(lx, ly, lz int32) int {
	sx, sy, sz := lx/SubchunkSize, ly/SubchunkSize, lz/SubchunkSize
	return int(sx + 2*sy + 4*sz)
}

func subchunkLocal(lx, ly, lz int32) (x, y, z int32) {
	return lx % SubchunkSize, ly % SubchunkSize, lz % SubchunkSize
}

func subchunkFlatIndex(x, y, z int32) int {
	return int(x + y*SubchunkSize + z*SubchunkSize*SubchunkSize)
}

// subchunk is one of a Chunk's 8 lazily-allocated 16^3 octants.
type subchunk struct {
	blocks      [SubchunkVolume]BlockState
	nonAirCount int32
	opaqueCount int32
}

func (s *subchunk) isEmpty() bool { return s.nonAirCount == 0 }

// Chunk is a sparse 32^3 cubic region of voxels. Subchunks are allocated on
// first non-air write and freed once their non-air count returns to zero;
// setBlock is the only place allocation/deallocation happens.
type Chunk struct {
	Coord ChunkCoord

	subchunks [8]*subchunk

	nonAirCount int64
	opaqueCount int64

	dirty           bool
	persistDirty    bool
	worldGenVersion uint32
	meshRevision    uint64
}

// NewChunk returns an empty chunk at coord.
func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{Coord: coord}
}

func (c *Chunk) NonAirCount() int64     { return c.nonAirCount }
func (c *Chunk) OpaqueCount() int64     { return c.opaqueCount }
func (c *Chunk) Dirty() bool            { return c.dirty }
func (c *Chunk) PersistDirty() bool     { return c.persistDirty }
func (c *Chunk) MeshRevision() uint64   { return c.meshRevision }
func (c *Chunk) IsEmpty() bool          { return c.nonAirCount == 0 }
func (c *Chunk) WorldGenVersion() uint32 { return c.worldGenVersion }

func (c *Chunk) SetWorldGenVersion(v uint32) { c.worldGenVersion = v }

// ClearDirty clears the mesh-rebuild flag, typically after a mesh consumer
// has picked up the current revision.
func (c *Chunk) ClearDirty() { c.dirty = false }

// ClearPersistDirty clears the save-needed flag, typically after a
// successful write to storage.
func (c *Chunk) ClearPersistDirty() { c.persistDirty = false }

func (c *Chunk) markMutated() {
	c.dirty = true
	c.persistDirty = true
	c.meshRevision++
}

// MarkDirty forces a mesh rebuild without mutating block data (used by
// ChunkManager to propagate boundary edits from a neighbor).
func (c *Chunk) MarkDirty() {
	c.dirty = true
	c.meshRevision++
}

// GetBlock returns the stored block, or Air if its subchunk was never
// allocated. x,y,z are chunk-local in [0, ChunkSize).
func (c *Chunk) GetBlock(x, y, z int32) BlockState {
	idx := subchunkIndex(x, y, z)
	sc := c.subchunks[idx]
	if sc == nil {
		return Air
	}
	sx, sy, sz := subchunkLocal(x, y, z)
	return sc.blocks[subchunkFlatIndex(sx, sy, sz)]
}

// SetBlock writes state at the chunk-local coordinate. Writing the same
// state is a no-op. registry is used to update the opaque counters; when
// nil, opacity tracking degrades gracefully (counters are left unchanged).
// Reports whether the write changed anything.
func (c *Chunk) SetBlock(x, y, z int32, state BlockState, registry *blockreg.Registry) bool {
	idx := subchunkIndex(x, y, z)
	sx, sy, sz := subchunkLocal(x, y, z)
	flat := subchunkFlatIndex(sx, sy, sz)

	sc := c.subchunks[idx]
	var old BlockState
	if sc != nil {
		old = sc.blocks[flat]
	}
	if old == state {
		return false
	}

	wasAir := old.isAir()
	nowAir := state.isAir()
	var wasOpaque, nowOpaque bool
	if registry != nil {
		wasOpaque = !wasAir && registry.IsOpaque(old.Id)
		nowOpaque = !nowAir && registry.IsOpaque(state.Id)
	}

	if sc == nil {
		sc = &subchunk{}
		c.subchunks[idx] = sc
	}
	sc.blocks[flat] = state

	switch {
	case wasAir && !nowAir:
		sc.nonAirCount++
		c.nonAirCount++
	case !wasAir && nowAir:
		sc.nonAirCount--
		c.nonAirCount--
	}
	if nowOpaque && !wasOpaque {
		sc.opaqueCount++
		c.opaqueCount++
	} else if wasOpaque && !nowOpaque {
		sc.opaqueCount--
		c.opaqueCount--
	}

	if sc.isEmpty() {
		c.subchunks[idx] = nil
	}

	c.markMutated()
	return true
}

// Fill assigns state to every block in the chunk.
func (c *Chunk) Fill(state BlockState, registry *blockreg.Registry) {
	for z := int32(0); z < ChunkSize; z++ {
		for y := int32(0); y < ChunkSize; y++ {
			for x := int32(0); x < ChunkSize; x++ {
				c.SetBlock(x, y, z, state, registry)
			}
		}
	}
}

// CopyFrom bulk-assigns from a dense buffer laid out x + y*S + z*S^2. Fails
// if buf does not contain exactly Volume entries.
func (c *Chunk) CopyFrom(buf []BlockState, registry *blockreg.Registry) error {
	if len(buf) != Volume {
		return fmt.Errorf("chunkstore: %w: copyFrom buffer len %d, want %d", xerr.ErrInvalidInput, len(buf), Volume)
	}
	for z := int32(0); z < ChunkSize; z++ {
		for y := int32(0); y < ChunkSize; y++ {
			for x := int32(0); x < ChunkSize; x++ {
				i := x + y*ChunkSize + z*ChunkSize*ChunkSize
				c.SetBlock(x, y, z, buf[i], registry)
			}
		}
	}
	return nil
}

// CopyBlocks materializes the dense x + y*S + z*S^2 array into out, which
// must have length Volume.
func (c *Chunk) CopyBlocks(out []BlockState) error {
	if len(out) != Volume {
		return fmt.Errorf("chunkstore: %w: copyBlocks buffer len %d, want %d", xerr.ErrInvalidInput, len(out), Volume)
	}
	for z := int32(0); z < ChunkSize; z++ {
		for y := int32(0); y < ChunkSize; y++ {
			for x := int32(0); x < ChunkSize; x++ {
				out[x+y*ChunkSize+z*ChunkSize*ChunkSize] = c.GetBlock(x, y, z)
			}
		}
	}
	return nil
}

// Serialize encodes the chunk to the RCHK binary format: magic, x/y/z,
// worldGenVersion, then Volume block states in x + y*S + z*S^2 order.
func (c *Chunk) Serialize() []byte {
	buf := make([]byte, 0, 4+4*3+4+Volume*4)
	buf = append(buf, chunkMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Coord.X))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Coord.Y))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Coord.Z))
	buf = binary.LittleEndian.AppendUint32(buf, c.worldGenVersion)

	dense := make([]BlockState, Volume)
	c.CopyBlocks(dense)
	for _, s := range dense {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s.Id))
		buf = append(buf, s.Metadata, s.packLight())
	}
	return buf
}

const (
	headerLenCurrent = 4 + 4*3 + 4
	headerLenLegacy  = 4 + 4*3
)

// UnknownBlockIdPolicy controls how Deserialize handles a decoded block id
// that has no entry in the registry it decodes against, e.g. a chunk saved
// under a different block registration order.
type UnknownBlockIdPolicy uint8

const (
	// UnknownBlockIdFail aborts decoding with xerr.ErrDeserialize.
	UnknownBlockIdFail UnknownBlockIdPolicy = iota
	// UnknownBlockIdPlaceholder substitutes a caller-supplied placeholder id.
	UnknownBlockIdPlaceholder
	// UnknownBlockIdSkip substitutes Air for the unknown id.
	UnknownBlockIdSkip
)

// Deserialize decodes bytes produced by Serialize, or a legacy encoding
// that omits worldGenVersion, applying policy to any decoded block id not
// present in registry. placeholderId is only consulted under
// UnknownBlockIdPlaceholder.
func Deserialize(data []byte, registry *blockreg.Registry, policy UnknownBlockIdPolicy, placeholderId blockreg.BlockId) (*Chunk, error) {
	if len(data) < headerLenLegacy || string(data[:4]) != chunkMagic {
		return nil, fmt.Errorf("chunkstore: %w: bad magic", xerr.ErrDeserialize)
	}

	legacyBody := len(data) == headerLenLegacy+Volume*4
	currentBody := len(data) == headerLenCurrent+Volume*4
	if !legacyBody && !currentBody {
		return nil, fmt.Errorf("chunkstore: %w: unexpected length %d", xerr.ErrDeserialize, len(data))
	}

	off := 4
	x := int32(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	y := int32(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	z := int32(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	var worldGenVersion uint32
	if currentBody {
		worldGenVersion = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	c := NewChunk(ChunkCoord{x, y, z})
	c.worldGenVersion = worldGenVersion

	dense := make([]BlockState, Volume)
	for i := range dense {
		id := blockreg.BlockId(binary.LittleEndian.Uint16(data[off:]))
		if registry != nil && !registry.IsRegistered(id) {
			switch policy {
			case UnknownBlockIdPlaceholder:
				id = placeholderId
			case UnknownBlockIdSkip:
				id = blockreg.Air
			default:
				return nil, fmt.Errorf("chunkstore: %w: unknown block id %d at voxel %d", xerr.ErrDeserialize, id, i)
			}
		}
		metadata := data[off+2]
		sky, block := unpackLight(data[off+3])
		dense[i] = BlockState{Id: id, Metadata: metadata, SkyLight: sky, BlockLight: block}
		off += 4
	}
	if err := c.CopyFrom(dense, registry); err != nil {
		return nil, err
	}
	// CopyFrom marks the chunk dirty/persistDirty; a freshly loaded chunk
	// should not need an immediate save.
	c.persistDirty = false
	return c, nil
}
