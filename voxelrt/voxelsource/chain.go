package voxelsource

import "sync/atomic"

// ChainTelemetry is the chain's cumulative, additive counters.
type ChainTelemetry struct {
	LoadedHits      uint64
	PersistenceHits uint64
	GeneratorHits   uint64
	VoxelsSampled   uint64
}

// Chain tries loaded, then persistence, then generator, in that order. The
// first Hit short-circuits. A Cancelled from any source short-circuits the
// whole chain. It is a flat struct holding up to three optional source
// handles, the tagged-sum the voxel source polymorphism is modeled as.
type Chain struct {
	Loaded      *LoadedSource
	Persistence *PersistenceSource
	Generator   *GeneratorSource

	loadedHits      atomic.Uint64
	persistenceHits atomic.Uint64
	generatorHits   atomic.Uint64
	voxelsSampled   atomic.Uint64
}

// SampleBrick implements IVoxelSource by trying each configured source in
// priority order.
func (c *Chain) SampleBrick(desc BrickSampleDesc, out []VoxelId, cancel *CancelFlag) BrickSampleStatus {
	if c.Loaded != nil {
		switch status := c.Loaded.SampleBrick(desc, out, cancel); status {
		case Hit:
			c.loadedHits.Add(1)
			c.voxelsSampled.Add(uint64(len(out)))
			return Hit
		case Cancelled:
			return Cancelled
		}
	}

	if c.Persistence != nil {
		switch status := c.Persistence.SampleBrick(desc, out, cancel); status {
		case Hit:
			c.persistenceHits.Add(1)
			c.voxelsSampled.Add(uint64(len(out)))
			return Hit
		case Cancelled:
			return Cancelled
		}
	}

	if c.Generator != nil {
		switch status := c.Generator.SampleBrick(desc, out, cancel); status {
		case Hit:
			c.generatorHits.Add(1)
			c.voxelsSampled.Add(uint64(len(out)))
			return Hit
		case Cancelled:
			return Cancelled
		}
	}

	return Miss
}

// Telemetry returns a snapshot of the chain's cumulative counters.
func (c *Chain) Telemetry() ChainTelemetry {
	return ChainTelemetry{
		LoadedHits:      c.loadedHits.Load(),
		PersistenceHits: c.persistenceHits.Load(),
		GeneratorHits:   c.generatorHits.Load(),
		VoxelsSampled:   c.voxelsSampled.Load(),
	}
}
