package voxelsource

import (
	"container/list"
	"sync"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
)

// RegionFormat is the persistence collaborator: it knows the on-disk
// layout, which is opaque to this core. The core only needs to map chunks
// to regions, enumerate the storage keys that cover a chunk, and fetch a
// region's contents.
type RegionFormat interface {
	RegionForChunk(zone string, coord chunkstore.ChunkCoord) chunkstore.RegionKey
	StorageKeysForChunk(zone string, coord chunkstore.ChunkCoord) []chunkstore.ChunkKey
	SpanForStorageKey(key chunkstore.ChunkKey) chunkstore.ChunkSpan
	LoadRegion(key chunkstore.RegionKey) chunkstore.ChunkRegionSnapshot
}

type chunkCacheEntry struct {
	blocks   []chunkstore.BlockState
	negative bool // cached "this chunk has no persisted data"
}

// regionLRU is ChunkCache's structure repeated for RegionKey, since the
// region and chunk caches need independent capacities and eviction clocks.
type regionLRU struct {
	max   int
	order *list.List
	index map[chunkstore.RegionKey]*list.Element
}

func newRegionLRU(max int) *regionLRU {
	return &regionLRU{max: max, order: list.New(), index: make(map[chunkstore.RegionKey]*list.Element)}
}

func (c *regionLRU) touch(key chunkstore.RegionKey) {
	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(key)
}

func (c *regionLRU) contains(key chunkstore.RegionKey) bool {
	_, ok := c.index[key]
	return ok
}

func (c *regionLRU) evictOverCapacity() []chunkstore.RegionKey {
	var evicted []chunkstore.RegionKey
	for c.order.Len() > c.max {
		el := c.order.Back()
		if el == nil {
			break
		}
		key := el.Value.(chunkstore.RegionKey)
		c.order.Remove(el)
		delete(c.index, key)
		evicted = append(evicted, key)
	}
	return evicted
}

// PersistenceTelemetry accumulates this source's own chunk-load counters,
// read through Telemetry().
type PersistenceTelemetry struct {
	Hits          uint64
	Misses        uint64
	StorageErrors uint64
}

// PersistenceSource holds an access clock and two LRU caches (region ->
// snapshot, chunk -> decoded blocks or a negative marker) guarded by a
// single mutex. Cache hits never block on I/O: region reads happen with no
// locks held, and the loaded region is inserted under the lock with an
// incremented access clock.
type PersistenceSource struct {
	format   RegionFormat
	zone     string
	registry *blockreg.Registry

	mu          sync.Mutex
	accessClock uint64

	regionOrder  *regionLRU
	regionValues map[chunkstore.RegionKey]chunkstore.ChunkRegionSnapshot

	chunkOrder  *chunkstore.ChunkCache
	chunkValues map[chunkstore.ChunkCoord]chunkCacheEntry

	telemetry PersistenceTelemetry
}

// NewPersistenceSource returns a source reading zone through format, with
// the given region/chunk cache capacities.
func NewPersistenceSource(format RegionFormat, zone string, registry *blockreg.Registry, maxRegions, maxChunks int) *PersistenceSource {
	return &PersistenceSource{
		format:       format,
		zone:         zone,
		registry:     registry,
		regionOrder:  newRegionLRU(maxRegions),
		regionValues: make(map[chunkstore.RegionKey]chunkstore.ChunkRegionSnapshot),
		chunkOrder:   chunkstore.NewChunkCache(maxChunks),
		chunkValues:  make(map[chunkstore.ChunkCoord]chunkCacheEntry),
	}
}

func (p *PersistenceSource) Telemetry() PersistenceTelemetry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.telemetry
}

// InvalidateChunk drops the decoded blocks cached for coord along with the
// region cache entry the format maps coord to.
func (p *PersistenceSource) InvalidateChunk(coord chunkstore.ChunkCoord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chunkValues, coord)
	p.chunkOrder.Erase(coord)

	region := p.format.RegionForChunk(p.zone, coord)
	delete(p.regionValues, region)
}

// tryLoadChunk returns the decoded dense block array for coord, or Miss if
// the format has no data for it. A Cancelled sentinel is observed between
// the chunk and span iteration loops and before decoding each span row.
func (p *PersistenceSource) tryLoadChunk(coord chunkstore.ChunkCoord, cancel *CancelFlag) ([]chunkstore.BlockState, BrickSampleStatus) {
	p.mu.Lock()
	if entry, ok := p.chunkValues[coord]; ok {
		p.chunkOrder.Touch(coord)
		p.mu.Unlock()
		if entry.negative {
			return nil, Miss
		}
		return entry.blocks, Hit
	}
	p.mu.Unlock()

	if cancel.IsCancelled() {
		return nil, Cancelled
	}

	regionKey := p.format.RegionForChunk(p.zone, coord)

	p.mu.Lock()
	regionSnap, ok := p.regionValues[regionKey]
	if ok {
		p.regionOrder.touch(regionKey)
	}
	p.mu.Unlock()

	if !ok {
		if cancel.IsCancelled() {
			return nil, Cancelled
		}
		regionSnap = p.format.LoadRegion(regionKey)

		p.mu.Lock()
		p.accessClock++
		p.regionValues[regionKey] = regionSnap
		p.regionOrder.touch(regionKey)
		for _, evicted := range p.regionOrder.evictOverCapacity() {
			delete(p.regionValues, evicted)
		}
		p.mu.Unlock()
	}

	if cancel.IsCancelled() {
		return nil, Cancelled
	}

	keys := p.format.StorageKeysForChunk(p.zone, coord)
	var spans []chunkstore.ChunkData
	for _, key := range keys {
		if cancel.IsCancelled() {
			return nil, Cancelled
		}
		for _, snap := range regionSnap.Chunks {
			if snap.Key == key {
				spans = append(spans, snap.Data)
			}
		}
	}

	if len(spans) == 0 {
		p.mu.Lock()
		p.chunkValues[coord] = chunkCacheEntry{negative: true}
		p.chunkOrder.Touch(coord)
		p.telemetry.Misses++
		p.mu.Unlock()
		return nil, Miss
	}

	c := chunkstore.NewChunk(coord)
	status := decodeSpansCancelable(c, p.registry, spans, cancel)
	if status != Hit {
		if status == Miss {
			p.mu.Lock()
			p.telemetry.StorageErrors++
			p.mu.Unlock()
		}
		return nil, status
	}

	dense := make([]chunkstore.BlockState, chunkstore.Volume)
	c.CopyBlocks(dense)

	p.mu.Lock()
	p.chunkValues[coord] = chunkCacheEntry{blocks: dense}
	p.chunkOrder.Touch(coord)
	for _, evicted := range p.chunkOrder.Evict(nil) {
		delete(p.chunkValues, evicted)
	}
	p.telemetry.Hits++
	p.mu.Unlock()

	return dense, Hit
}

// decodeSpansCancelable applies spans to c, checking cancel between spans
// and before each Y row within a span.
func decodeSpansCancelable(c *chunkstore.Chunk, registry *blockreg.Registry, spans []chunkstore.ChunkData, cancel *CancelFlag) BrickSampleStatus {
	for _, d := range spans {
		if cancel.IsCancelled() {
			return Cancelled
		}
		if err := d.Span.Validate(); err != nil {
			return Miss
		}
		off := d.Span.OffsetXYZ
		size := d.Span.SizeXYZ
		for z := int32(0); z < size[2]; z++ {
			for y := int32(0); y < size[1]; y++ {
				if cancel.IsCancelled() {
					return Cancelled
				}
				for x := int32(0); x < size[0]; x++ {
					idx := x + z*size[0] + y*size[0]*size[2]
					c.SetBlock(off[0]+x, off[1]+y, off[2]+z, d.Blocks[idx], registry)
				}
			}
		}
	}
	return Hit
}

// SampleBrick implements IVoxelSource by loading every chunk intersecting
// desc through tryLoadChunk.
func (p *PersistenceSource) SampleBrick(desc BrickSampleDesc, out []VoxelId, cancel *CancelFlag) BrickSampleStatus {
	if err := checkDesc(desc, out); err != nil {
		return Miss
	}
	dims := desc.OutputDims()

	minWorld := desc.WorldMinVoxel
	maxWorld := [3]int32{
		minWorld[0] + desc.BrickDims[0] - 1,
		minWorld[1] + desc.BrickDims[1] - 1,
		minWorld[2] + desc.BrickDims[2] - 1,
	}
	minChunk := chunkstore.WorldToChunk(minWorld[0], minWorld[1], minWorld[2])
	maxChunk := chunkstore.WorldToChunk(maxWorld[0], maxWorld[1], maxWorld[2])

	loaded := make(map[chunkstore.ChunkCoord][]chunkstore.BlockState)

	for cz := minChunk.Z; cz <= maxChunk.Z; cz++ {
		for cy := minChunk.Y; cy <= maxChunk.Y; cy++ {
			for cx := minChunk.X; cx <= maxChunk.X; cx++ {
				if cancel.IsCancelled() {
					return Cancelled
				}
				coord := chunkstore.ChunkCoord{X: cx, Y: cy, Z: cz}
				blocks, status := p.tryLoadChunk(coord, cancel)
				switch status {
				case Cancelled:
					return Cancelled
				case Miss:
					return Miss
				}
				loaded[coord] = blocks
			}
		}
	}

	const S = chunkstore.ChunkSize
	for z := int32(0); z < dims[2]; z++ {
		if cancel.IsCancelled() {
			return Cancelled
		}
		for y := int32(0); y < dims[1]; y++ {
			for x := int32(0); x < dims[0]; x++ {
				wx, wy, wz := desc.worldAt(x, y, z)
				coord := chunkstore.WorldToChunk(wx, wy, wz)
				blocks := loaded[coord]
				lx, ly, lz := chunkstore.WorldToLocal(wx, wy, wz)
				state := blocks[lx+ly*S+lz*S*S]
				out[x+y*dims[0]+z*dims[0]*dims[1]] = toVoxelId(state.Id)
			}
		}
	}
	return Hit
}
