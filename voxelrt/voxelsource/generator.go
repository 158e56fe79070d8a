package voxelsource

import "github.com/gekko3d/voxelsvo/voxelrt/chunkstore"

// GenerateFunc synthesizes one chunk's worth of blocks into out (length
// chunkstore.Volume, x + y*S + z*S^2 order). It must be a pure function of
// coord: workers may call it concurrently for different chunks with no
// other synchronization. Returns false if cancel fired mid-generation.
type GenerateFunc func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *CancelFlag) bool

// GeneratorSource synthesizes chunk data on demand via a caller-supplied
// pure function. It never reports Miss for valid inputs.
type GeneratorSource struct {
	generate GenerateFunc
}

// NewGeneratorSource wraps generate as an IVoxelSource.
func NewGeneratorSource(generate GenerateFunc) *GeneratorSource {
	return &GeneratorSource{generate: generate}
}

// SampleBrick implements IVoxelSource.
func (g *GeneratorSource) SampleBrick(desc BrickSampleDesc, out []VoxelId, cancel *CancelFlag) BrickSampleStatus {
	if err := checkDesc(desc, out); err != nil {
		return Miss
	}
	if g.generate == nil {
		return Miss
	}
	dims := desc.OutputDims()

	minWorld := desc.WorldMinVoxel
	maxWorld := [3]int32{
		minWorld[0] + desc.BrickDims[0] - 1,
		minWorld[1] + desc.BrickDims[1] - 1,
		minWorld[2] + desc.BrickDims[2] - 1,
	}
	minChunk := chunkstore.WorldToChunk(minWorld[0], minWorld[1], minWorld[2])
	maxChunk := chunkstore.WorldToChunk(maxWorld[0], maxWorld[1], maxWorld[2])

	generated := make(map[chunkstore.ChunkCoord][]chunkstore.BlockState)

	for cz := minChunk.Z; cz <= maxChunk.Z; cz++ {
		for cy := minChunk.Y; cy <= maxChunk.Y; cy++ {
			for cx := minChunk.X; cx <= maxChunk.X; cx++ {
				if cancel.IsCancelled() {
					return Cancelled
				}
				coord := chunkstore.ChunkCoord{X: cx, Y: cy, Z: cz}
				blocks := make([]chunkstore.BlockState, chunkstore.Volume)
				if ok := g.generate(coord, blocks, cancel); !ok {
					return Cancelled
				}
				generated[coord] = blocks
			}
		}
	}

	const S = chunkstore.ChunkSize
	for z := int32(0); z < dims[2]; z++ {
		if cancel.IsCancelled() {
			return Cancelled
		}
		for y := int32(0); y < dims[1]; y++ {
			for x := int32(0); x < dims[0]; x++ {
				wx, wy, wz := desc.worldAt(x, y, z)
				coord := chunkstore.WorldToChunk(wx, wy, wz)
				blocks := generated[coord]
				lx, ly, lz := chunkstore.WorldToLocal(wx, wy, wz)
				state := blocks[lx+ly*S+lz*S*S]
				out[x+y*dims[0]+z*dims[0]*dims[1]] = toVoxelId(state.Id)
			}
		}
	}
	return Hit
}
