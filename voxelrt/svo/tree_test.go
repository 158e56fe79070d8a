package svo

import (
	"testing"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

func buildCpu(t *testing.T, dim int32, value voxelsource.VoxelId) VoxelPageCpu {
	t.Helper()
	l0 := uniformL0(dim, value)
	p, err := BuildMipPyramid(l0, dim)
	if err != nil {
		t.Fatalf("BuildMipPyramid: %v", err)
	}
	return VoxelPageCpu{Dim: dim, L0: l0, Mips: p}
}

// A6: uniform solid page (value 7) -> nodes = [Solid(7,dim)], root = 0.
// Uniform-air page -> nodes = [Empty(dim)].
func TestSeedA6UniformSolidAndAirPages(t *testing.T) {
	const dim = 8
	solid := buildCpu(t, dim, 7)
	tree := BuildPageTree(solid, 2, DefaultClassifier)
	if len(tree.Nodes) != 1 {
		t.Fatalf("len(Nodes) = %d, want 1", len(tree.Nodes))
	}
	if tree.Root != 0 {
		t.Fatalf("Root = %d, want 0", tree.Root)
	}
	n := tree.Nodes[0]
	if n.Kind != KindSolid || n.MaterialId != 7 || n.LeafSizeVoxels != uint16(dim) {
		t.Fatalf("root node = %+v, want Solid(7,%d)", n, dim)
	}

	air := buildCpu(t, dim, voxelsource.VoxelAir)
	airTree := BuildPageTree(air, 2, DefaultClassifier)
	if len(airTree.Nodes) != 1 {
		t.Fatalf("len(Nodes) = %d, want 1", len(airTree.Nodes))
	}
	n = airTree.Nodes[0]
	if n.Kind != KindEmpty || n.LeafSizeVoxels != uint16(dim) {
		t.Fatalf("root node = %+v, want Empty(%d)", n, dim)
	}
}

// Property 7: for every Mixed node, childMask has >=1 bit set and
// exactly the set bits point to valid child indices; non-Mixed nodes
// have childMask==0 and all-INVALID children.
func TestPropertyPageTreeSoundness(t *testing.T) {
	const dim = 8
	l0 := uniformL0(dim, 0)
	l0[0] = 3
	p, err := BuildMipPyramid(l0, dim)
	if err != nil {
		t.Fatalf("BuildMipPyramid: %v", err)
	}
	cpu := VoxelPageCpu{Dim: dim, L0: l0, Mips: p}
	tree := BuildPageTree(cpu, 1, DefaultClassifier)

	if tree.Root == Invalid {
		t.Fatal("root is Invalid for a non-empty page")
	}

	for i, n := range tree.Nodes {
		switch n.Kind {
		case KindMixed:
			if n.ChildMask == 0 {
				t.Fatalf("node %d: Mixed with childMask == 0", i)
			}
			for bit := uint(0); bit < 8; bit++ {
				set := n.ChildMask&(1<<bit) != 0
				child := n.Children[bit]
				if set && child == Invalid {
					t.Fatalf("node %d: bit %d set but child Invalid", i, bit)
				}
				if !set && child != Invalid {
					t.Fatalf("node %d: bit %d unset but child %d", i, bit, child)
				}
				if set && int(child) >= len(tree.Nodes) {
					t.Fatalf("node %d: child index %d out of range", i, child)
				}
			}
		default:
			if n.ChildMask != 0 {
				t.Fatalf("node %d: non-Mixed with childMask != 0", i)
			}
			for bit, child := range n.Children {
				if child != Invalid {
					t.Fatalf("node %d: non-Mixed child[%d] = %d, want Invalid", i, bit, child)
				}
			}
		}
	}
}

func TestPageTreeForcedTerminationUsesDominantValue(t *testing.T) {
	const dim = 4
	l0 := uniformL0(dim, 1)
	l0[0] = 2 // makes the whole page mixed at every level above L0
	p, err := BuildMipPyramid(l0, dim)
	if err != nil {
		t.Fatalf("BuildMipPyramid: %v", err)
	}
	cpu := VoxelPageCpu{Dim: dim, L0: l0, Mips: p}

	// minLeafVoxels == dim forces termination at the root itself.
	tree := BuildPageTree(cpu, dim, DefaultClassifier)
	if len(tree.Nodes) != 1 {
		t.Fatalf("len(Nodes) = %d, want 1 (forced termination at root)", len(tree.Nodes))
	}
	if tree.Nodes[0].Kind != KindSolid || tree.Nodes[0].MaterialId != 1 {
		t.Fatalf("root = %+v, want Solid(1) from dominant value", tree.Nodes[0])
	}
}
