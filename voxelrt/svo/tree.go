package svo

import (
	"math"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

// NodeIndex is a 32-bit index into a VoxelPageTree's flat node array.
type NodeIndex = uint32

// Invalid is the sentinel NodeIndex: no child, or an empty tree's root.
const Invalid NodeIndex = math.MaxUint32

// NodeKind classifies a VoxelPageTree node.
type NodeKind uint8

const (
	KindEmpty NodeKind = iota
	KindSolid
	KindMixed
)

// MaterialClass buckets a VoxelId for render-side sorting.
type MaterialClass uint8

const (
	ClassAir MaterialClass = iota
	ClassOpaque
	ClassCutout
	ClassTransparent
)

// Classifier maps a VoxelId to its MaterialClass; Air must classify to
// ClassAir.
type Classifier func(voxelsource.VoxelId) MaterialClass

// Node is one entry of a VoxelPageTree's flat array.
type Node struct {
	Kind           NodeKind
	MaterialClass  MaterialClass
	MaterialId     voxelsource.VoxelId
	LeafSizeVoxels uint16
	ChildMask      uint8
	Children       [8]NodeIndex
}

// VoxelPageTree is an adaptive sparse voxel octree over a page's mip
// pyramid, stored as a flat array of Node with 32-bit child indices.
type VoxelPageTree struct {
	Nodes []Node
	Root  NodeIndex
}

// BuildPageTree builds the adaptive octree for page using minLeafVoxels
// as the forced-termination leaf size and classify to assign material
// classes to solid leaves.
func BuildPageTree(page VoxelPageCpu, minLeafVoxels int32, classify Classifier) VoxelPageTree {
	b := &treeBuilder{page: page, minLeaf: minLeafVoxels, classify: classify}
	root := b.buildRegion(page.Dim, 0, 0, 0, true)
	return VoxelPageTree{Nodes: b.nodes, Root: root}
}

type treeBuilder struct {
	page     VoxelPageCpu
	minLeaf  int32
	classify Classifier
	nodes    []Node
}

func (b *treeBuilder) append(n Node) NodeIndex {
	idx := NodeIndex(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return idx
}

// leafNode builds a non-Mixed node with every child set to Invalid, since
// the zero value for Children is all-zero NodeIndex, not Invalid.
func leafNode(kind NodeKind, class MaterialClass, materialId voxelsource.VoxelId, leafSizeVoxels int32) Node {
	n := Node{
		Kind:           kind,
		MaterialClass:  class,
		MaterialId:     materialId,
		LeafSizeVoxels: uint16(leafSizeVoxels),
	}
	for i := range n.Children {
		n.Children[i] = Invalid
	}
	return n
}

func (b *treeBuilder) buildRegion(size, x0, y0, z0 int32, isRoot bool) NodeIndex {
	mip := log2Pow2(size)
	uniform, value := b.page.Mips.CellAt(mip, x0>>uint(mip), y0>>uint(mip), z0>>uint(mip))

	if uniform && value == voxelsource.VoxelAir {
		if isRoot {
			return b.append(leafNode(KindEmpty, ClassAir, voxelsource.VoxelAir, size))
		}
		return Invalid
	}
	if uniform {
		return b.append(leafNode(KindSolid, b.classify(value), value, size))
	}
	if size <= b.minLeaf {
		if value == voxelsource.VoxelAir {
			return b.append(leafNode(KindEmpty, ClassAir, voxelsource.VoxelAir, size))
		}
		return b.append(leafNode(KindSolid, b.classify(value), value, size))
	}

	half := size / 2
	var children [8]NodeIndex
	for i := range children {
		children[i] = Invalid
	}
	var childMask uint8
	for i, off := range childEnumOrder {
		childIdx := b.buildRegion(half, x0+off[0]*half, y0+off[1]*half, z0+off[2]*half, false)
		if childIdx != Invalid {
			children[i] = childIdx
			childMask |= 1 << uint(i)
		}
	}

	if childMask == 0 {
		if isRoot {
			return b.append(leafNode(KindEmpty, ClassAir, voxelsource.VoxelAir, size))
		}
		return Invalid
	}

	return b.append(Node{
		Kind:      KindMixed,
		ChildMask: childMask,
		Children:  children,
	})
}
