package voxelsource

import (
	"testing"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
)

// Chain priority, spec §8 property 8, loaded case: when the loaded source
// hits, the chain returns loaded data and increments loadedHits.
func TestChainPrefersLoadedOverOthers(t *testing.T) {
	m, stone := newTestManagerWithStone(t)
	m.SetBlock(0, 0, 0, chunkstore.BlockState{Id: stone})
	desc := BrickSampleDesc{BrickDims: [3]int32{32, 32, 32}, StepVoxels: 1}

	chain := &Chain{
		Loaded: SnapshotForBrick(m, desc),
		Generator: NewGeneratorSource(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, c *CancelFlag) bool {
			for i := range out {
				out[i] = chunkstore.BlockState{Id: blockreg.BlockId(99)}
			}
			return true
		}),
	}

	out := make([]VoxelId, desc.OutputCount())
	status := chain.SampleBrick(desc, out, nil)
	if status != Hit {
		t.Fatalf("status = %v, want Hit", status)
	}
	if out[0] != VoxelId(stone) {
		t.Fatalf("out[0] = %v, want loaded value %v, not generator's", out[0], stone)
	}
	if chain.Telemetry().LoadedHits != 1 {
		t.Fatalf("LoadedHits = %d, want 1", chain.Telemetry().LoadedHits)
	}
}

func TestChainFallsBackToGeneratorWhenLoadedMisses(t *testing.T) {
	m, _ := newTestManagerWithStone(t)
	desc := BrickSampleDesc{BrickDims: [3]int32{32, 32, 32}, StepVoxels: 1}

	chain := &Chain{
		Loaded: SnapshotForBrick(m, desc), // empty, will Miss
		Generator: NewGeneratorSource(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, c *CancelFlag) bool {
			for i := range out {
				out[i] = chunkstore.BlockState{Id: blockreg.BlockId(42)}
			}
			return true
		}),
	}

	out := make([]VoxelId, desc.OutputCount())
	status := chain.SampleBrick(desc, out, nil)
	if status != Hit {
		t.Fatalf("status = %v, want Hit", status)
	}
	if out[0] != 42 {
		t.Fatalf("out[0] = %v, want generator value 42", out[0])
	}
	if chain.Telemetry().GeneratorHits != 1 {
		t.Fatalf("GeneratorHits = %d, want 1", chain.Telemetry().GeneratorHits)
	}
}

func TestChainMissWhenNoSourceConfigured(t *testing.T) {
	chain := &Chain{}
	desc := BrickSampleDesc{BrickDims: [3]int32{32, 32, 32}, StepVoxels: 1}
	out := make([]VoxelId, desc.OutputCount())
	if status := chain.SampleBrick(desc, out, nil); status != Miss {
		t.Fatalf("status = %v, want Miss", status)
	}
}

func TestChainShortCircuitsOnCancelled(t *testing.T) {
	var cancel CancelFlag
	cancel.Cancel()

	m, stone := newTestManagerWithStone(t)
	m.SetBlock(0, 0, 0, chunkstore.BlockState{Id: stone})
	desc := BrickSampleDesc{BrickDims: [3]int32{32, 32, 32}, StepVoxels: 1}

	calledGenerator := false
	chain := &Chain{
		Loaded: SnapshotForBrick(m, desc),
		Generator: NewGeneratorSource(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, c *CancelFlag) bool {
			calledGenerator = true
			return true
		}),
	}

	out := make([]VoxelId, desc.OutputCount())
	status := chain.SampleBrick(desc, out, &cancel)
	if status != Cancelled {
		t.Fatalf("status = %v, want Cancelled", status)
	}
	if calledGenerator {
		t.Fatal("generator should not run once loaded source observed cancellation")
	}
}
