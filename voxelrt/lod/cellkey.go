package lod

import "github.com/gekko3d/voxelsvo/voxelrt/chunkstore"

// LodCellKey addresses a span x span x span group of chunks used to batch
// dirty-edit propagation from the chunk store to the page pipeline.
type LodCellKey struct {
	X, Y, Z int32
}

func floorDivI32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorModI32(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// CellForChunk returns the LOD cell a chunk coordinate falls in for the
// given cell span (in chunks).
func CellForChunk(coord chunkstore.ChunkCoord, span int32) LodCellKey {
	return LodCellKey{
		X: floorDivI32(coord.X, span),
		Y: floorDivI32(coord.Y, span),
		Z: floorDivI32(coord.Z, span),
	}
}

// axisOffsets returns the set of per-axis cell offsets a chunk at
// localOffset within a span-sized cell touches: 0 always, -1 if the
// chunk sits on the cell's low boundary face, +1 if it sits on the
// high boundary face.
func axisOffsets(localOffset, span int32) []int32 {
	offsets := []int32{0}
	if localOffset == 0 {
		offsets = append(offsets, -1)
	}
	if localOffset == span-1 {
		offsets = append(offsets, 1)
	}
	return offsets
}

// TouchedCells returns every LOD cell a chunk edit at coord must
// propagate to: its own cell, plus the neighbor across any boundary
// face the chunk sits on (a corner chunk touches all 8 surrounding
// cells). Appends to out and returns it.
func TouchedCells(coord chunkstore.ChunkCoord, span int32, out []LodCellKey) []LodCellKey {
	base := CellForChunk(coord, span)
	lx := floorModI32(coord.X, span)
	ly := floorModI32(coord.Y, span)
	lz := floorModI32(coord.Z, span)

	offsetsX := axisOffsets(lx, span)
	offsetsY := axisOffsets(ly, span)
	offsetsZ := axisOffsets(lz, span)

	seen := make(map[LodCellKey]bool, len(offsetsX)*len(offsetsY)*len(offsetsZ))
	for _, dx := range offsetsX {
		for _, dy := range offsetsY {
			for _, dz := range offsetsZ {
				key := LodCellKey{X: base.X + dx, Y: base.Y + dy, Z: base.Z + dz}
				if !seen[key] {
					seen[key] = true
					out = append(out, key)
				}
			}
		}
	}
	return out
}
