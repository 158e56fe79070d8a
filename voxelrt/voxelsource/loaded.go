package voxelsource

import (
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
)

// chunkBlocks is a dense snapshot of one chunk's blocks, laid out the same
// way Chunk.CopyBlocks produces: x + y*S + z*S^2.
type chunkBlocks struct {
	coord  chunkstore.ChunkCoord
	blocks []chunkstore.BlockState
}

// LoadedSource is backed by per-chunk snapshots taken on the main thread.
// It reports Miss if any chunk intersecting a requested brick is not in
// the snapshot set.
type LoadedSource struct {
	snapshots map[chunkstore.ChunkCoord]chunkBlocks
}

// SnapshotForBrick builds a LoadedSource from manager, selecting every
// chunk whose coordinate lies in the axis-aligned chunk bounding box of
// desc. Must run on the main thread (the only safe reader of
// ChunkManager); the resulting LoadedSource is then safe to hand to
// workers.
func SnapshotForBrick(manager *chunkstore.ChunkManager, desc BrickSampleDesc) *LoadedSource {
	src := &LoadedSource{snapshots: make(map[chunkstore.ChunkCoord]chunkBlocks)}

	minWorld := desc.WorldMinVoxel
	maxWorld := [3]int32{
		minWorld[0] + desc.BrickDims[0] - 1,
		minWorld[1] + desc.BrickDims[1] - 1,
		minWorld[2] + desc.BrickDims[2] - 1,
	}
	minChunk := chunkstore.WorldToChunk(minWorld[0], minWorld[1], minWorld[2])
	maxChunk := chunkstore.WorldToChunk(maxWorld[0], maxWorld[1], maxWorld[2])

	for cz := minChunk.Z; cz <= maxChunk.Z; cz++ {
		for cy := minChunk.Y; cy <= maxChunk.Y; cy++ {
			for cx := minChunk.X; cx <= maxChunk.X; cx++ {
				coord := chunkstore.ChunkCoord{X: cx, Y: cy, Z: cz}
				c := manager.GetChunk(coord)
				if c == nil {
					continue
				}
				dense := make([]chunkstore.BlockState, chunkstore.Volume)
				c.CopyBlocks(dense)
				src.snapshots[coord] = chunkBlocks{coord: coord, blocks: dense}
			}
		}
	}
	return src
}

func (s *LoadedSource) chunkAt(coord chunkstore.ChunkCoord) (chunkBlocks, bool) {
	cb, ok := s.snapshots[coord]
	return cb, ok
}

func blockAt(cb chunkBlocks, lx, ly, lz int32) chunkstore.BlockState {
	const S = chunkstore.ChunkSize
	return cb.blocks[lx+ly*S+lz*S*S]
}

// SampleBrick implements IVoxelSource.
func (s *LoadedSource) SampleBrick(desc BrickSampleDesc, out []VoxelId, cancel *CancelFlag) BrickSampleStatus {
	if err := checkDesc(desc, out); err != nil {
		return Miss
	}
	dims := desc.OutputDims()

	for z := int32(0); z < dims[2]; z++ {
		if cancel.IsCancelled() {
			return Cancelled
		}
		for y := int32(0); y < dims[1]; y++ {
			for x := int32(0); x < dims[0]; x++ {
				wx, wy, wz := desc.worldAt(x, y, z)
				coord := chunkstore.WorldToChunk(wx, wy, wz)
				cb, ok := s.chunkAt(coord)
				if !ok {
					return Miss
				}
				lx, ly, lz := chunkstore.WorldToLocal(wx, wy, wz)
				state := blockAt(cb, lx, ly, lz)
				out[x+y*dims[0]+z*dims[0]*dims[1]] = toVoxelId(state.Id)
			}
		}
	}
	return Hit
}
