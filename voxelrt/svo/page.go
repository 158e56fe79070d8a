package svo

import "github.com/gekko3d/voxelsvo/voxelrt/voxelsource"

// VoxelPageKey addresses one page of a level. Level 0 pages are finest;
// each level samples world space with step 1<<level.
type VoxelPageKey struct {
	Level int32
	X, Y, Z int32
}

// StepVoxels is the world-space sampling stride for this key's level.
func (k VoxelPageKey) StepVoxels() int32 {
	return 1 << uint(k.Level)
}

// VoxelPageCpu is the CPU-side sampled content of one page: a dense L0
// array plus its mip pyramid.
type VoxelPageCpu struct {
	Key  VoxelPageKey
	Dim  int32
	L0   []voxelsource.VoxelId
	Mips VoxelMipPyramid
}

// descForPage builds the BrickSampleDesc that covers key's page at its
// level's sampling step.
func descForPage(key VoxelPageKey, dim int32) voxelsource.BrickSampleDesc {
	step := key.StepVoxels()
	worldSpan := dim * step
	return voxelsource.BrickSampleDesc{
		WorldMinVoxel: [3]int32{key.X * worldSpan, key.Y * worldSpan, key.Z * worldSpan},
		BrickDims:     [3]int32{worldSpan, worldSpan, worldSpan},
		StepVoxels:    step,
	}
}
