package svo

import (
	"testing"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

func uniformL0(dim int32, value voxelsource.VoxelId) []voxelsource.VoxelId {
	l0 := make([]voxelsource.VoxelId, dim*dim*dim)
	for i := range l0 {
		l0[i] = value
	}
	return l0
}

// A5: 8^3 page, all zero except (0,0,0)=3. The (0,0,0) cell is mixed on
// mips 1,2,3; every other cell is uniform with value 0.
func TestSeedA5MipMixedAtCorner(t *testing.T) {
	const dim = 8
	l0 := uniformL0(dim, 0)
	l0[0] = 3 // (0,0,0)

	p, err := BuildMipPyramid(l0, dim)
	if err != nil {
		t.Fatalf("BuildMipPyramid: %v", err)
	}
	if len(p.Levels) != 4 {
		t.Fatalf("len(Levels) = %d, want 4", len(p.Levels))
	}

	for level := 1; level <= 3; level++ {
		uniform, _ := p.CellAt(level, 0, 0, 0)
		if uniform {
			t.Fatalf("level %d cell (0,0,0) uniform = true, want mixed", level)
		}
		levelDim := p.BaseDim >> uint(level)
		for z := int32(0); z < levelDim; z++ {
			for y := int32(0); y < levelDim; y++ {
				for x := int32(0); x < levelDim; x++ {
					if x == 0 && y == 0 && z == 0 {
						continue
					}
					u, v := p.CellAt(level, x, y, z)
					if !u || v != 0 {
						t.Fatalf("level %d cell (%d,%d,%d) = (%v,%v), want uniform 0", level, x, y, z, u, v)
					}
				}
			}
		}
	}
}

// Property 6: if a level-L cell is uniform with value v, every L0 voxel
// in its footprint equals v.
func TestPropertyMipUniformityImpliesFootprint(t *testing.T) {
	const dim = 8
	l0 := uniformL0(dim, 5)
	p, err := BuildMipPyramid(l0, dim)
	if err != nil {
		t.Fatalf("BuildMipPyramid: %v", err)
	}

	uniform, value := p.CellAt(3, 0, 0, 0)
	if !uniform || value != 5 {
		t.Fatalf("top cell = (%v,%v), want uniform 5", uniform, value)
	}
	for _, v := range l0 {
		if v != 5 {
			t.Fatalf("l0 voxel = %v, want 5", v)
		}
	}
}

func TestBuildMipPyramidRejectsNonPow2(t *testing.T) {
	_, err := BuildMipPyramid(make([]voxelsource.VoxelId, 27), 3)
	if err == nil {
		t.Fatal("expected error for non-pow2 baseDim")
	}
}

func TestBuildMipPyramidRejectsWrongLength(t *testing.T) {
	_, err := BuildMipPyramid(make([]voxelsource.VoxelId, 10), 4)
	if err == nil {
		t.Fatal("expected error for mismatched l0 length")
	}
}

func TestDominantValueTiesBreakByFirstSeen(t *testing.T) {
	// two 1s and two 2s and four 0s with 1 appearing before 2 in
	// childEnumOrder; 0 has highest count (4) so 0 wins outright here.
	got := dominantValue([8]voxelsource.VoxelId{0, 1, 0, 2, 0, 1, 0, 2})
	if got != 0 {
		t.Fatalf("dominantValue = %v, want 0", got)
	}
	// a true tie: four 1s, four 2s, 1 appears first in the fixed order.
	got = dominantValue([8]voxelsource.VoxelId{1, 2, 1, 2, 1, 2, 1, 2})
	if got != 1 {
		t.Fatalf("dominantValue tie = %v, want 1 (first-seen)", got)
	}
}
