// Package svo builds a page's mip pyramid and adaptive sparse voxel
// octree from sampled voxel ids, and runs the clipmap-style page pipeline
// that schedules those builds on a worker pool. The page tree's flat
// node array with 32-bit child indices is grounded on the teacher's BVH
// builder (recursiveBuild appending nodes to a shared slice and returning
// each node's own index), reworked from a binary BVH over AABBs to an
// 8-way adaptive octree over mip cells.
package svo

import (
	"fmt"
	"math/bits"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

// uniformBit marks a packed mip cell as uniform; the low 16 bits hold the
// dominant VoxelId.
const uniformBit = uint32(1) << 16

func packCell(uniform bool, value voxelsource.VoxelId) uint32 {
	v := uint32(value)
	if uniform {
		v |= uniformBit
	}
	return v
}

func unpackCell(cell uint32) (uniform bool, value voxelsource.VoxelId) {
	return cell&uniformBit != 0, voxelsource.VoxelId(cell & 0xFFFF)
}

// VoxelMipPyramid is a stack of coarsening 3-D arrays built from L0 by
// 2x2x2 aggregation. Levels[0] has baseDim^3 cells; the final level has
// dim 1.
type VoxelMipPyramid struct {
	BaseDim int32
	Levels  [][]uint32
}

func log2Pow2(v int32) int {
	return bits.TrailingZeros32(uint32(v))
}

func isPow2(v int32) bool {
	return v > 0 && v&(v-1) == 0
}

// childEnumOrder is the fixed order the spec requires for plurality
// tie-breaking: -x-y-z, +x-y-z, -x+y-z, +x+y-z, -x-y+z, +x-y+z, -x+y+z,
// +x+y+z. Index i = dx + 2*dy + 4*dz, matching the subchunk/child index
// convention used throughout this module.
var childEnumOrder = [8][3]int32{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// dominantValue returns the plurality value among the 8 entries, ties
// broken by first-seen order in childEnumOrder.
func dominantValue(values [8]voxelsource.VoxelId) voxelsource.VoxelId {
	counts := make(map[voxelsource.VoxelId]int, 8)
	order := make(map[voxelsource.VoxelId]int, 8)
	for i, v := range values {
		if _, seen := order[v]; !seen {
			order[v] = i
		}
		counts[v]++
	}
	best := values[0]
	bestCount := -1
	bestOrder := len(values)
	for v, n := range counts {
		o := order[v]
		if n > bestCount || (n == bestCount && o < bestOrder) {
			best = v
			bestCount = n
			bestOrder = o
		}
	}
	return best
}

// BuildMipPyramid builds the full pyramid from l0. baseDim must be a
// power of two and len(l0) must equal baseDim^3.
func BuildMipPyramid(l0 []voxelsource.VoxelId, baseDim int32) (VoxelMipPyramid, error) {
	if !isPow2(baseDim) {
		return VoxelMipPyramid{}, fmt.Errorf("svo: %w: baseDim %d not a power of two", xerr.ErrInvalidInput, baseDim)
	}
	if int64(len(l0)) != int64(baseDim)*int64(baseDim)*int64(baseDim) {
		return VoxelMipPyramid{}, fmt.Errorf("svo: %w: l0 len %d, want %d", xerr.ErrInvalidInput, len(l0), baseDim*baseDim*baseDim)
	}

	numLevels := log2Pow2(baseDim) + 1
	pyramid := VoxelMipPyramid{BaseDim: baseDim, Levels: make([][]uint32, numLevels)}

	level0 := make([]uint32, len(l0))
	for i, v := range l0 {
		level0[i] = packCell(true, v)
	}
	pyramid.Levels[0] = level0

	dim := baseDim
	for level := 1; level < numLevels; level++ {
		prevDim := dim
		dim /= 2
		prev := pyramid.Levels[level-1]
		next := make([]uint32, dim*dim*dim)

		for z := int32(0); z < dim; z++ {
			for y := int32(0); y < dim; y++ {
				for x := int32(0); x < dim; x++ {
					var childValues [8]voxelsource.VoxelId
					allUniform := true
					first := true
					sameValue := true
					for i, off := range childEnumOrder {
						cx := 2*x + off[0]
						cy := 2*y + off[1]
						cz := 2*z + off[2]
						cell := prev[cx+cy*prevDim+cz*prevDim*prevDim]
						uniform, value := unpackCell(cell)
						childValues[i] = value
						if !uniform {
							allUniform = false
						}
						if first {
							first = false
						} else if value != childValues[0] {
							sameValue = false
						}
					}
					uniform := allUniform && sameValue
					var value voxelsource.VoxelId
					if uniform {
						value = childValues[0]
					} else {
						value = dominantValue(childValues)
					}
					next[x+y*dim+z*dim*dim] = packCell(uniform, value)
				}
			}
		}
		pyramid.Levels[level] = next
	}

	return pyramid, nil
}

// CellAt returns the unpacked (uniform, value) pair at level for the
// level-local cell coordinate.
func (p VoxelMipPyramid) CellAt(level int, cx, cy, cz int32) (bool, voxelsource.VoxelId) {
	dim := p.BaseDim >> uint(level)
	return unpackCell(p.Levels[level][cx+cy*dim+cz*dim*dim])
}
