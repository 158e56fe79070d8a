// Package config holds the engine-core configuration record and its
// sanitization, mirroring the clamping style the teacher applied to client
// radii before handing them to the voxel runtime.
package config

import "math/bits"

// VoxelSvoConfig configures the page pipeline and LOD transition math.
type VoxelSvoConfig struct {
	Enabled bool

	NearMeshRadiusChunks int32
	StartRadiusChunks    int32
	MaxRadiusChunks      int32
	TransitionBandChunks int32

	Levels        int32
	PageSizeVoxels int32
	MinLeafVoxels  int32

	BuildBudgetPagesPerFrame  int32
	ApplyBudgetPagesPerFrame  int32
	UploadBudgetPagesPerFrame int32

	MaxResidentPages int32
	MaxCpuBytes      int64
	MaxGpuBytes      int64
}

// DefaultConfig returns a config with reasonable, already-sanitized
// defaults.
func DefaultConfig() VoxelSvoConfig {
	c := VoxelSvoConfig{
		Enabled:                   true,
		NearMeshRadiusChunks:      4,
		StartRadiusChunks:         8,
		MaxRadiusChunks:           16,
		TransitionBandChunks:      2,
		Levels:                    4,
		PageSizeVoxels:            32,
		MinLeafVoxels:             2,
		BuildBudgetPagesPerFrame:  4,
		ApplyBudgetPagesPerFrame:  4,
		UploadBudgetPagesPerFrame: 4,
		MaxResidentPages:          4096,
		MaxCpuBytes:               256 << 20,
		MaxGpuBytes:               256 << 20,
	}
	c.Sanitize()
	return c
}

func nextPow2(v int32) int32 {
	if v <= 1 {
		return 1
	}
	return 1 << uint(bits.Len32(uint32(v-1)))
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64Min(v, lo int64) int64 {
	if v < lo {
		return lo
	}
	return v
}

// Sanitize clamps out-of-range fields and rounds non-power-of-two voxel
// sizes up to the next power of two, in place.
func (c *VoxelSvoConfig) Sanitize() {
	if c.NearMeshRadiusChunks < 0 {
		c.NearMeshRadiusChunks = 0
	}
	if c.StartRadiusChunks < c.NearMeshRadiusChunks {
		c.StartRadiusChunks = c.NearMeshRadiusChunks
	}
	if c.MaxRadiusChunks < c.StartRadiusChunks {
		c.MaxRadiusChunks = c.StartRadiusChunks
	}
	if c.TransitionBandChunks < 0 {
		c.TransitionBandChunks = 0
	}

	c.Levels = clampInt32(c.Levels, 1, 16)

	c.PageSizeVoxels = clampInt32(nextPow2(c.PageSizeVoxels), 8, 256)
	if c.MinLeafVoxels <= 0 {
		c.MinLeafVoxels = 1
	}
	c.MinLeafVoxels = nextPow2(c.MinLeafVoxels)
	if c.MinLeafVoxels > c.PageSizeVoxels {
		c.MinLeafVoxels = c.PageSizeVoxels
	}

	if c.BuildBudgetPagesPerFrame < 0 {
		c.BuildBudgetPagesPerFrame = 0
	}
	if c.ApplyBudgetPagesPerFrame < 0 {
		c.ApplyBudgetPagesPerFrame = 0
	}
	if c.UploadBudgetPagesPerFrame < 0 {
		c.UploadBudgetPagesPerFrame = 0
	}

	if c.MaxResidentPages < 0 {
		c.MaxResidentPages = 0
	}
	c.MaxCpuBytes = clampInt64Min(c.MaxCpuBytes, 0)
	c.MaxGpuBytes = clampInt64Min(c.MaxGpuBytes, 0)
}
