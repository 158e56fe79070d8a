// Package voxelsource implements the prioritized, worker-safe voxel brick
// sampling chain: in-memory snapshots, then persisted regions behind a
// bounded cache, then an on-demand generator. The chain is a tagged sum of
// handles (LoadedSource / PersistenceSource / GeneratorSource) rather than
// an inheritance hierarchy, per the one polymorphic seam this engine core
// needs.
package voxelsource

import (
	"fmt"
	"sync/atomic"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

// VoxelId mirrors a block's type id for the LOD pipeline. VoxelAir is the
// reserved value for empty space.
type VoxelId uint16

const VoxelAir VoxelId = 0

// BrickSampleDesc describes a brick of the world to sample at a given
// step. Output at (x,y,z) samples the voxel at worldMinVoxel +
// (x,y,z)*stepVoxels.
type BrickSampleDesc struct {
	WorldMinVoxel [3]int32
	BrickDims     [3]int32
	StepVoxels    int32
}

// Valid checks stepVoxels >= 1, all dims positive, and each dim divisible
// by stepVoxels.
func (d BrickSampleDesc) Valid() bool {
	if d.StepVoxels < 1 {
		return false
	}
	for _, dim := range d.BrickDims {
		if dim <= 0 || dim%d.StepVoxels != 0 {
			return false
		}
	}
	return true
}

// OutputDims returns BrickDims / StepVoxels per axis.
func (d BrickSampleDesc) OutputDims() [3]int32 {
	return [3]int32{
		d.BrickDims[0] / d.StepVoxels,
		d.BrickDims[1] / d.StepVoxels,
		d.BrickDims[2] / d.StepVoxels,
	}
}

// OutputCount returns the product of OutputDims.
func (d BrickSampleDesc) OutputCount() int {
	dims := d.OutputDims()
	return int(dims[0]) * int(dims[1]) * int(dims[2])
}

func (d BrickSampleDesc) worldAt(x, y, z int32) (wx, wy, wz int32) {
	return d.WorldMinVoxel[0] + x*d.StepVoxels,
		d.WorldMinVoxel[1] + y*d.StepVoxels,
		d.WorldMinVoxel[2] + z*d.StepVoxels
}

// BrickSampleStatus is the outcome of one sampleBrick call.
type BrickSampleStatus int

const (
	Hit BrickSampleStatus = iota
	Miss
	Cancelled
)

func (s BrickSampleStatus) String() string {
	switch s {
	case Hit:
		return "Hit"
	case Miss:
		return "Miss"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("BrickSampleStatus(%d)", int(s))
	}
}

// CancelFlag is a shared cooperative-cancellation flag. The zero value is
// not cancelled. Safe for concurrent use.
type CancelFlag struct {
	flag atomic.Bool
}

func (c *CancelFlag) IsCancelled() bool {
	if c == nil {
		return false
	}
	return c.flag.Load()
}

func (c *CancelFlag) Cancel() { c.flag.Store(true) }

// IVoxelSource samples a brick of voxel ids. Implementations must be
// worker-safe: callable from any thread without external locking against
// themselves, provided the caller's view of world state is stable.
type IVoxelSource interface {
	SampleBrick(desc BrickSampleDesc, out []VoxelId, cancel *CancelFlag) BrickSampleStatus
}

func checkDesc(desc BrickSampleDesc, out []VoxelId) error {
	if !desc.Valid() {
		return fmt.Errorf("voxelsource: %w: invalid BrickSampleDesc %+v", xerr.ErrInvalidInput, desc)
	}
	if len(out) != desc.OutputCount() {
		return fmt.Errorf("voxelsource: %w: out len %d, want %d", xerr.ErrInvalidInput, len(out), desc.OutputCount())
	}
	return nil
}

// toVoxelId converts a stored block id to the LOD pipeline's VoxelId space;
// the two share the same numeric identity by construction (§3).
func toVoxelId(id blockreg.BlockId) VoxelId { return VoxelId(id) }
