package surface

import (
	"fmt"

	"github.com/gekko3d/voxelsvo/voxelrt/svo"
	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

// MacroVoxelGrid is a page's mip level reinterpreted as a dense grid of
// macro cells, each cellSizeVoxels wide.
type MacroVoxelGrid struct {
	Dims           [3]int32
	CellSizeVoxels int32
	Cells          []voxelsource.VoxelId
}

func (g *MacroVoxelGrid) index(x, y, z int32) int {
	return int(x + y*g.Dims[0] + z*g.Dims[0]*g.Dims[1])
}

func (g *MacroVoxelGrid) inBounds(x, y, z int32) bool {
	return x >= 0 && x < g.Dims[0] && y >= 0 && y < g.Dims[1] && z >= 0 && z < g.Dims[2]
}

// At returns the cell value at (x,y,z); out-of-range coordinates are
// reported as VoxelAir by the caller, not here, since meaning differs
// (chunk boundary vs. page boundary).
func (g *MacroVoxelGrid) At(x, y, z int32) voxelsource.VoxelId {
	return g.Cells[g.index(x, y, z)]
}

func log2Pow2(v int32) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func isPow2(v int32) bool {
	return v > 0 && v&(v-1) == 0
}

// BuildMacroGridFromPage reinterprets page's mip level log2(cellSizeVoxels)
// as a dense grid. dim must be divisible by cellSizeVoxels and
// cellSizeVoxels must be a power of two.
func BuildMacroGridFromPage(page svo.VoxelPageCpu, cellSizeVoxels int32) (MacroVoxelGrid, error) {
	if !isPow2(cellSizeVoxels) {
		return MacroVoxelGrid{}, fmt.Errorf("surface: %w: cellSizeVoxels %d not a power of two", xerr.ErrInvalidInput, cellSizeVoxels)
	}
	if page.Dim%cellSizeVoxels != 0 {
		return MacroVoxelGrid{}, fmt.Errorf("surface: %w: page dim %d not divisible by cellSizeVoxels %d", xerr.ErrInvalidInput, page.Dim, cellSizeVoxels)
	}

	level := log2Pow2(cellSizeVoxels)
	dim := page.Dim / cellSizeVoxels
	grid := MacroVoxelGrid{Dims: [3]int32{dim, dim, dim}, CellSizeVoxels: cellSizeVoxels, Cells: make([]voxelsource.VoxelId, dim*dim*dim)}

	for z := int32(0); z < dim; z++ {
		for y := int32(0); y < dim; y++ {
			for x := int32(0); x < dim; x++ {
				_, value := page.Mips.CellAt(level, x, y, z)
				grid.Cells[grid.index(x, y, z)] = value
			}
		}
	}
	return grid, nil
}
