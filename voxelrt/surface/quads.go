package surface

import "github.com/gekko3d/voxelsvo/voxelrt/voxelsource"

// BoundaryPolicy controls what a face sample crossing the grid's edge
// reads when no neighbor grid is supplied.
type BoundaryPolicy uint8

const (
	OutsideEmpty BoundaryPolicy = iota
	OutsideSolid
)

// outsideSolidSentinel is any non-air VoxelId; only air-ness is tested
// when resolving OutsideSolid, so the exact value never reaches output.
const outsideSolidSentinel = voxelsource.VoxelId(1)

// SurfaceQuad is one emitted face, in macro-cell units.
type SurfaceQuad struct {
	Normal   Direction
	CellMin  [3]int32
	Span     [2]int32
	Material voxelsource.VoxelId
}

var allDirections = [6]Direction{PosX, NegX, PosY, NegY, PosZ, NegZ}

// neighborSample reads the cell adjacent to (x,y,z) in direction dir. If
// that cell is inside grid, it's read directly; otherwise the matching
// entry of neighbors (if any) supplies its boundary slab, falling back
// to policy when there is no neighbor for dir.
func neighborSample(grid *MacroVoxelGrid, x, y, z int32, dir Direction, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy) voxelsource.VoxelId {
	off := dir.Offset()
	nx, ny, nz := x+off[0], y+off[1], z+off[2]
	if grid.inBounds(nx, ny, nz) {
		return grid.At(nx, ny, nz)
	}

	if neighbors != nil {
		if nb := neighbors[dir]; nb != nil {
			// The neighbor lies on dir's far side; its near boundary slab
			// (the face touching this grid) is the slice at index 0 along
			// dir's axis if dir is positive, or the last index if negative.
			lx, ly, lz := nx, ny, nz
			switch dir {
			case PosX:
				lx = 0
			case NegX:
				lx = nb.Dims[0] - 1
			case PosY:
				ly = 0
			case NegY:
				ly = nb.Dims[1] - 1
			case PosZ:
				lz = 0
			case NegZ:
				lz = nb.Dims[2] - 1
			}
			if nb.inBounds(lx, ly, lz) {
				return nb.At(lx, ly, lz)
			}
		}
	}

	if policy == OutsideEmpty {
		return voxelsource.VoxelAir
	}
	return outsideSolidSentinel
}

func faceVisible(grid *MacroVoxelGrid, x, y, z int32, dir Direction, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy) bool {
	return neighborSample(grid, x, y, z, dir, neighbors, policy) == voxelsource.VoxelAir
}

// ExtractSurfaceQuads emits a unit quad on each face of each solid cell
// whose neighbor in that direction is empty (grid edges resolved via
// policy). Appends to out.
func ExtractSurfaceQuads(grid MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	extractSurfaceQuadsInternal(&grid, nil, policy, out)
}

// ExtractSurfaceQuadsNeighborAware is ExtractSurfaceQuads but grid edges
// whose neighbor grid is supplied read that neighbor's boundary slab
// instead of falling back to policy.
func ExtractSurfaceQuadsNeighborAware(grid MacroVoxelGrid, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	extractSurfaceQuadsInternal(&grid, neighbors, policy, out)
}

func extractSurfaceQuadsInternal(grid *MacroVoxelGrid, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	for z := int32(0); z < grid.Dims[2]; z++ {
		for y := int32(0); y < grid.Dims[1]; y++ {
			for x := int32(0); x < grid.Dims[0]; x++ {
				material := grid.At(x, y, z)
				if material == voxelsource.VoxelAir {
					continue
				}
				for _, dir := range allDirections {
					if faceVisible(grid, x, y, z, dir, neighbors, policy) {
						*out = append(*out, SurfaceQuad{
							Normal:   dir,
							CellMin:  [3]int32{x, y, z},
							Span:     [2]int32{1, 1},
							Material: material,
						})
					}
				}
			}
		}
	}
}

// ExtractSurfaceQuadsGreedy performs per-plane greedy merging: for each
// axis and slice, a 2-D mask of same-material faces (from the non-greedy
// rule) is swept, merging axis-aligned rectangles.
func ExtractSurfaceQuadsGreedy(grid MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	greedyMesh(&grid, nil, policy, out)
}

// ExtractSurfaceQuadsGreedyNeighborAware is ExtractSurfaceQuadsGreedy but
// reads neighbor boundary slabs instead of policy where a neighbor is
// supplied, preventing double-faced quads at page seams.
func ExtractSurfaceQuadsGreedyNeighborAware(grid MacroVoxelGrid, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	greedyMesh(&grid, neighbors, policy, out)
}

func greedyMesh(grid *MacroVoxelGrid, neighbors map[Direction]*MacroVoxelGrid, policy BoundaryPolicy, out *[]SurfaceQuad) {
	for _, dir := range allDirections {
		u, v, w := dir.planeAxes()
		dimU, dimV, dimW := grid.Dims[u], grid.Dims[v], grid.Dims[w]

		for w0 := int32(0); w0 < dimW; w0++ {
			mask := make([]voxelsource.VoxelId, dimU*dimV)
			for v0 := int32(0); v0 < dimV; v0++ {
				for u0 := int32(0); u0 < dimU; u0++ {
					var coord [3]int32
					coord[u], coord[v], coord[w] = u0, v0, w0
					material := grid.At(coord[0], coord[1], coord[2])
					if material != voxelsource.VoxelAir && faceVisible(grid, coord[0], coord[1], coord[2], dir, neighbors, policy) {
						mask[u0+v0*dimU] = material
					}
				}
			}

			visited := make([]bool, dimU*dimV)
			for v0 := int32(0); v0 < dimV; v0++ {
				for u0 := int32(0); u0 < dimU; u0++ {
					idx := u0 + v0*dimU
					if visited[idx] || mask[idx] == voxelsource.VoxelAir {
						continue
					}
					material := mask[idx]

					width := int32(1)
					for u1 := u0 + 1; u1 < dimU; u1++ {
						i := u1 + v0*dimU
						if visited[i] || mask[i] != material {
							break
						}
						width++
					}

					height := int32(1)
				rowLoop:
					for v1 := v0 + 1; v1 < dimV; v1++ {
						for u1 := u0; u1 < u0+width; u1++ {
							i := u1 + v1*dimU
							if visited[i] || mask[i] != material {
								break rowLoop
							}
						}
						height++
					}

					for v1 := v0; v1 < v0+height; v1++ {
						for u1 := u0; u1 < u0+width; u1++ {
							visited[u1+v1*dimU] = true
						}
					}

					var cellMin [3]int32
					cellMin[u], cellMin[v], cellMin[w] = u0, v0, w0
					*out = append(*out, SurfaceQuad{
						Normal:   dir,
						CellMin:  cellMin,
						Span:     [2]int32{width, height},
						Material: material,
					})
				}
			}
		}
	}
}
