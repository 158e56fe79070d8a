package svo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/semaphore"

	"github.com/gekko3d/voxelsvo"
	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
	"github.com/gekko3d/voxelsvo/voxelrt/config"
	"github.com/gekko3d/voxelsvo/voxelrt/lod"
	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

// PageState is a PageRecord's lifecycle stage.
type PageState uint8

const (
	StateMissing PageState = iota
	StateQueuedSample
	StateBuildingCpu
	StateReadyCpu
)

// PageRecord tracks one page's build lifecycle. The main thread (the
// only caller of Update) is its sole mutator.
type PageRecord struct {
	Key VoxelPageKey

	State           PageState
	DesiredRevision uint64
	QueuedRevision  uint64
	AppliedRevision uint64

	NodeCount     int
	LeafMinVoxels int32

	LastTouchedFrame uint64

	Visibility lod.VisibilityState

	Cancel *voxelsource.CancelFlag

	Cpu  VoxelPageCpu
	Tree VoxelPageTree
}

// PageInfo is a read-only snapshot of a PageRecord for external
// observers; pageInfo() always returns a copy, never the live record.
type PageInfo struct {
	Key              VoxelPageKey
	State            PageState
	DesiredRevision  uint64
	QueuedRevision   uint64
	AppliedRevision  uint64
	NodeCount        int
	LeafMinVoxels    int32
	LastTouchedFrame uint64
	Visibility       lod.VisibilityState
}

func (r *PageRecord) info() PageInfo {
	return PageInfo{
		Key:              r.Key,
		State:            r.State,
		DesiredRevision:  r.DesiredRevision,
		QueuedRevision:   r.QueuedRevision,
		AppliedRevision:  r.AppliedRevision,
		NodeCount:        r.NodeCount,
		LeafMinVoxels:    r.LeafMinVoxels,
		LastTouchedFrame: r.LastTouchedFrame,
		Visibility:       r.Visibility,
	}
}

// pageBuildOutput is what a worker posts to the completion queue.
type pageBuildOutput struct {
	Key        VoxelPageKey
	Revision   uint64
	Status     voxelsource.BrickSampleStatus
	Cpu        VoxelPageCpu
	Tree       VoxelPageTree
	MipMicros  int64
	ChainDelta voxelsource.ChainTelemetry
}

// PageManager runs the clipmap-style page pipeline: it seeds a desired
// page set from the camera position, enqueues builds on a worker pool
// bounded by a semaphore, drains completions on the main thread, and
// enforces page/byte budgets.
type PageManager struct {
	mu sync.RWMutex

	cfg       config.VoxelSvoConfig
	classify  Classifier
	buildSema *semaphore.Weighted

	manager     *chunkstore.ChunkManager
	registry    *blockreg.Registry
	generator   *voxelsource.GeneratorSource
	persistence *voxelsource.PersistenceSource

	records map[VoxelPageKey]*PageRecord
	frame   uint64

	completions chan pageBuildOutput
	inFlight    sync.WaitGroup

	telemetry Telemetry
	logger    voxelsvo.Logger
}

// NewPageManager constructs an unbound, unconfigured manager. Call
// SetConfig, SetBuildThreads, bind dependencies, then Initialize.
func NewPageManager() *PageManager {
	return &PageManager{
		cfg:         config.DefaultConfig(),
		classify:    DefaultClassifier,
		buildSema:   semaphore.NewWeighted(4),
		records:     make(map[VoxelPageKey]*PageRecord),
		completions: make(chan pageBuildOutput, 256),
		telemetry:   newTelemetry(),
		logger:      voxelsvo.NewNopLogger(),
	}
}

// SetLogger installs the logger used for pool resizes, resets, evictions,
// and build failures. A nil logger falls back to a no-op logger so
// callers never need a nil check.
func (pm *PageManager) SetLogger(l voxelsvo.Logger) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if l == nil {
		l = voxelsvo.NewNopLogger()
	}
	pm.logger = l
}

// DefaultClassifier treats voxel id 0 (air) as ClassAir and everything
// else as ClassOpaque; callers with cutout/transparent materials should
// supply their own via SetClassifier.
func DefaultClassifier(id voxelsource.VoxelId) MaterialClass {
	if id == voxelsource.VoxelAir {
		return ClassAir
	}
	return ClassOpaque
}

func (pm *PageManager) SetConfig(cfg config.VoxelSvoConfig) {
	cfg.Sanitize()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.cfg = cfg
}

func (pm *PageManager) SetClassifier(c Classifier) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if c != nil {
		pm.classify = c
	}
}

// SetBuildThreads resizes the worker pool's concurrency cap.
func (pm *PageManager) SetBuildThreads(n int32) {
	if n < 1 {
		n = 1
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.buildSema = semaphore.NewWeighted(int64(n))
	pm.logger.Infof("page pipeline: resized build pool to %d threads", n)
}

// SetChunkGenerator installs the world-generation fallback used when
// neither loaded chunks nor persisted data cover a brick.
func (pm *PageManager) SetChunkGenerator(fn voxelsource.GenerateFunc) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.generator = voxelsource.NewGeneratorSource(fn)
}

// SetPersistenceSource installs the optional persisted-chunk source. Not
// part of the literal external surface but required to wire the chain's
// middle tier; absence simply means persistence never hits.
func (pm *PageManager) SetPersistenceSource(p *voxelsource.PersistenceSource) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.persistence = p
}

// Bind attaches the chunk manager and block registry the loaded source
// snapshots from.
func (pm *PageManager) Bind(manager *chunkstore.ChunkManager, registry *blockreg.Registry) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.manager = manager
	pm.registry = registry
}

// Initialize resets per-run state without discarding configuration.
func (pm *PageManager) Initialize() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.records = make(map[VoxelPageKey]*PageRecord)
	pm.telemetry = newTelemetry()
	pm.logger.Infof("page pipeline: initialized")
}

func floorDivI32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// levelRadiusChunks picks the clipmap radius (in chunks) for a level:
// it scales with level, floored at nearMeshRadiusChunks and capped at
// maxRadiusChunks. The spec leaves per-level radius selection open; this
// choice is documented as a design decision, not an invariant.
func levelRadiusChunks(cfg config.VoxelSvoConfig, level int32) int32 {
	r := cfg.StartRadiusChunks << uint(level)
	if r < cfg.NearMeshRadiusChunks {
		r = cfg.NearMeshRadiusChunks
	}
	if r > cfg.MaxRadiusChunks {
		r = cfg.MaxRadiusChunks
	}
	return r
}

func (pm *PageManager) getOrCreate(key VoxelPageKey, frame uint64) *PageRecord {
	rec, ok := pm.records[key]
	if !ok {
		rec = &PageRecord{Key: key, State: StateMissing, DesiredRevision: 1}
		pm.records[key] = rec
	}
	rec.LastTouchedFrame = frame
	return rec
}

// InvalidateKey bumps a page's desired revision, forcing a rebuild on
// the next enqueue pass even if it is already ReadyCpu.
func (pm *PageManager) InvalidateKey(key VoxelPageKey) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.invalidateKeyLocked(key)
}

func (pm *PageManager) invalidateKeyLocked(key VoxelPageKey) {
	if rec, ok := pm.records[key]; ok {
		rec.DesiredRevision++
	}
}

// pageChunkSpanAtLevel is the number of chunks one page at level covers
// along an axis: a page's world span divided by the chunk world size,
// floored at 1 so levels coarser than a single chunk still invalidate.
func pageChunkSpanAtLevel(cfg config.VoxelSvoConfig, level int32) int32 {
	step := int32(1) << uint(level)
	span := (cfg.PageSizeVoxels * step) / chunkstore.ChunkSize
	if span < 1 {
		span = 1
	}
	return span
}

// invalidateDirtyChunksLocked implements the chunk-store-to-page-pipeline
// half of invalidation: every chunk the chunkstore marked dirty since the
// last frame (an edit landed in it, or a face-adjacent neighbor's edit
// changed its exposed surface) bumps the desired revision of every page,
// at every level, whose clipmap cell it falls in or borders — using the
// same boundary/corner propagation TouchedCells uses for LOD cell
// invalidation, since a page at level L covering pageChunkSpanAtLevel(L)
// chunks per axis addresses exactly the same grid as an LodCellKey of
// that span.
func (pm *PageManager) invalidateDirtyChunksLocked() {
	if pm.manager == nil {
		return
	}
	dirty := pm.manager.GetDirtyChunks()
	if len(dirty) == 0 {
		return
	}
	var cells []lod.LodCellKey
	for _, coord := range dirty {
		for level := int32(0); level < pm.cfg.Levels; level++ {
			span := pageChunkSpanAtLevel(pm.cfg, level)
			cells = lod.TouchedCells(coord, span, cells[:0])
			for _, cell := range cells {
				pm.invalidateKeyLocked(VoxelPageKey{Level: level, X: cell.X, Y: cell.Y, Z: cell.Z})
			}
		}
	}
	pm.manager.ClearDirtyFlags()
}

// seedDesired implements step 1 of the per-frame pipeline: it walks
// every level's clipmap cube around cameraPos and touches (or creates)
// each covered page's record, low-to-high level order. This ordering is
// an arbitrary but deterministic choice (spec.md open question).
func (pm *PageManager) seedDesired(cameraPos mgl32.Vec3, frame uint64) map[VoxelPageKey]struct{} {
	desired := make(map[VoxelPageKey]struct{})
	for level := int32(0); level < pm.cfg.Levels; level++ {
		step := int32(1) << uint(level)
		worldSpan := pm.cfg.PageSizeVoxels * step
		radiusWorld := levelRadiusChunks(pm.cfg, level) * chunkstore.ChunkSize
		pagesRadius := radiusWorld/worldSpan + 1

		cpx := floorDivI32(int32(math.Floor(float64(cameraPos.X()))), worldSpan)
		cpy := floorDivI32(int32(math.Floor(float64(cameraPos.Y()))), worldSpan)
		cpz := floorDivI32(int32(math.Floor(float64(cameraPos.Z()))), worldSpan)

		for z := cpz - pagesRadius; z <= cpz+pagesRadius; z++ {
			for y := cpy - pagesRadius; y <= cpy+pagesRadius; y++ {
				for x := cpx - pagesRadius; x <= cpx+pagesRadius; x++ {
					key := VoxelPageKey{Level: level, X: x, Y: y, Z: z}
					pm.getOrCreate(key, frame)
					desired[key] = struct{}{}
				}
			}
		}
	}
	return desired
}

// pageCenterWorld returns the world-space center of key's page, used to
// drive the near/far LOD distance test.
func pageCenterWorld(key VoxelPageKey, pageSizeVoxels int32) mgl32.Vec3 {
	worldSpan := float32(pageSizeVoxels * key.StepVoxels())
	return mgl32.Vec3{
		(float32(key.X) + 0.5) * worldSpan,
		(float32(key.Y) + 0.5) * worldSpan,
		(float32(key.Z) + 0.5) * worldSpan,
	}
}

// updateVisibility applies the near/far LOD hysteresis (spec.md 4.9) to
// every page touched this frame, so a renderer walking PageInfo can tell
// a near mesh from a fading-in far page without redoing the distance math.
func (pm *PageManager) updateVisibility(desired map[VoxelPageKey]struct{}, cameraPos mgl32.Vec3) {
	transition := lod.ComputeTransition(pm.cfg, chunkstore.ChunkSize)
	renderDistanceWorld := float32(pm.cfg.MaxRadiusChunks * chunkstore.ChunkSize)
	renderDistanceSq := renderDistanceWorld * renderDistanceWorld

	for key := range desired {
		rec, ok := pm.records[key]
		if !ok {
			continue
		}
		center := pageCenterWorld(key, pm.cfg.PageSizeVoxels)
		distSq := center.Sub(cameraPos).LenSqr()
		rec.Visibility = transition.Update(rec.Visibility, distSq, renderDistanceSq)
	}
}

// enqueueBuilds implements step 2: records that are Missing or stale
// (queuedRevision < desiredRevision) are handed to the worker pool, up
// to buildBudgetPagesPerFrame.
func (pm *PageManager) enqueueBuilds(desired map[VoxelPageKey]struct{}) {
	budget := pm.cfg.BuildBudgetPagesPerFrame
	if budget <= 0 {
		return
	}
	enqueued := int32(0)
	for key := range desired {
		if enqueued >= budget {
			return
		}
		rec := pm.records[key]
		if rec == nil {
			continue
		}
		if rec.State != StateMissing && rec.QueuedRevision >= rec.DesiredRevision {
			continue
		}
		pm.spawnBuild(rec)
		enqueued++
	}
}

func (pm *PageManager) spawnBuild(rec *PageRecord) {
	revision := rec.DesiredRevision
	cancel := &voxelsource.CancelFlag{}
	rec.State = StateQueuedSample
	rec.QueuedRevision = revision
	rec.Cancel = cancel

	desc := descForPage(rec.Key, pm.cfg.PageSizeVoxels)
	var loaded *voxelsource.LoadedSource
	if pm.manager != nil {
		loaded = voxelsource.SnapshotForBrick(pm.manager, desc)
	}
	chain := &voxelsource.Chain{Loaded: loaded, Persistence: pm.persistence, Generator: pm.generator}
	classify := pm.classify
	minLeaf := pm.cfg.MinLeafVoxels
	logger := pm.logger

	pm.inFlight.Add(1)
	go pm.runBuild(rec.Key, revision, desc, chain, cancel, classify, minLeaf, logger)
}

func (pm *PageManager) runBuild(key VoxelPageKey, revision uint64, desc voxelsource.BrickSampleDesc, chain *voxelsource.Chain, cancel *voxelsource.CancelFlag, classify Classifier, minLeaf int32, logger voxelsvo.Logger) {
	defer pm.inFlight.Done()
	if err := pm.buildSema.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer pm.buildSema.Release(1)

	out := pageBuildOutput{Key: key, Revision: revision}
	l0 := make([]voxelsource.VoxelId, desc.OutputCount())
	status := chain.SampleBrick(desc, l0, cancel)
	out.ChainDelta = chain.Telemetry()
	out.Status = status

	if status == voxelsource.Hit {
		mipStart := time.Now()
		pyramid, err := BuildMipPyramid(l0, desc.OutputDims()[0])
		out.MipMicros = time.Since(mipStart).Microseconds()
		if err == nil {
			cpu := VoxelPageCpu{Key: key, Dim: desc.OutputDims()[0], L0: l0, Mips: pyramid}
			out.Cpu = cpu
			out.Tree = BuildPageTree(cpu, minLeaf, classify)
		} else {
			out.Status = voxelsource.Miss
			logger.Warnf("page pipeline: mip build failed for %+v: %v", key, err)
		}
	}

	pm.completions <- out
}

// drainCompletions implements step 3: up to applyBudgetPagesPerFrame
// completions are applied per call. Stale completions (superseded
// revision) are discarded and left Missing so the next enqueue pass
// retries them.
func (pm *PageManager) drainCompletions() {
	budget := pm.cfg.ApplyBudgetPagesPerFrame
	for applied := int32(0); applied < budget; applied++ {
		var out pageBuildOutput
		select {
		case out = <-pm.completions:
		default:
			return
		}

		pm.telemetry.BricksSampled++
		pm.telemetry.LoadedHits += out.ChainDelta.LoadedHits
		pm.telemetry.PersistenceHits += out.ChainDelta.PersistenceHits
		pm.telemetry.GeneratorHits += out.ChainDelta.GeneratorHits

		rec := pm.records[out.Key]
		if rec == nil {
			continue
		}
		if out.Revision < rec.DesiredRevision {
			rec.State = StateMissing
			continue
		}
		if out.Status != voxelsource.Hit {
			rec.State = StateMissing
			continue
		}

		pm.telemetry.VoxelsSampled += uint64(len(out.Cpu.L0))
		pm.telemetry.MipBuildMicros += out.MipMicros

		rec.Cpu = out.Cpu
		rec.Tree = out.Tree
		rec.AppliedRevision = out.Revision
		rec.NodeCount = len(out.Tree.Nodes)
		rec.LeafMinVoxels = pm.cfg.MinLeafVoxels
		rec.State = StateReadyCpu
	}
}

// pageBytes estimates one page's resident CPU footprint: L0 voxels at
// 2 bytes each plus the flat node array.
func pageBytes(rec *PageRecord) int64 {
	return int64(len(rec.Cpu.L0))*2 + int64(len(rec.Tree.Nodes))*24
}

// enforceLimits implements step 4: evicts records outside the desired
// set, oldest lastTouchedFrame first, until both maxResidentPages and
// maxCpuBytes are satisfied.
func (pm *PageManager) enforceLimits(desired map[VoxelPageKey]struct{}) {
	var candidates []*PageRecord
	var totalBytes int64
	for key, rec := range pm.records {
		totalBytes += pageBytes(rec)
		if _, want := desired[key]; !want {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastTouchedFrame < candidates[j].LastTouchedFrame
	})

	count := int32(len(pm.records))
	for _, rec := range candidates {
		if count <= pm.cfg.MaxResidentPages && totalBytes <= pm.cfg.MaxCpuBytes {
			break
		}
		if rec.Cancel != nil {
			rec.Cancel.Cancel()
		}
		totalBytes -= pageBytes(rec)
		delete(pm.records, rec.Key)
		count--
		pm.logger.Debugf("page pipeline: evicted %+v (resident=%d, cpuBytes=%d)", rec.Key, count, totalBytes)
	}
}

func (pm *PageManager) refreshTelemetryCounts() {
	t := &pm.telemetry
	t.ActivePages = int32(len(pm.records))
	t.PagesQueued, t.PagesBuilding, t.PagesReadyCpu = 0, 0, 0
	for k := range t.ReadyCpuPagesPerLevel {
		delete(t.ReadyCpuPagesPerLevel, k)
	}
	for k := range t.ReadyCpuNodesPerLevel {
		delete(t.ReadyCpuNodesPerLevel, k)
	}

	var cpuBytes int64
	for _, rec := range pm.records {
		switch rec.State {
		case StateQueuedSample, StateBuildingCpu:
			t.PagesQueued++
		case StateReadyCpu:
			t.PagesReadyCpu++
			t.ReadyCpuPagesPerLevel[rec.Key.Level]++
			t.ReadyCpuNodesPerLevel[rec.Key.Level] += int64(rec.NodeCount)
			cpuBytes += pageBytes(rec)
		}
	}
	t.CpuBytesCurrent = cpuBytes
}

// Update runs one full pipeline frame: seed, enqueue, drain, evict,
// refresh telemetry.
func (pm *PageManager) Update(cameraPos mgl32.Vec3, frame uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.telemetry.UpdateCalls++
	pm.frame = frame

	pm.invalidateDirtyChunksLocked()
	desired := pm.seedDesired(cameraPos, frame)
	pm.updateVisibility(desired, cameraPos)
	pm.enqueueBuilds(desired)
	pm.drainCompletions()
	pm.enforceLimits(desired)
	pm.refreshTelemetryCounts()
}

// UploadRenderResources is a stub for the external renderer's upload
// step; this core only counts it (spec.md open question: kept as counters
// rather than a real handoff API): each call increments UploadCalls and
// sets PagesUploaded to the number of ReadyCpu pages, capped at
// UploadBudgetPagesPerFrame when that budget is positive.
func (pm *PageManager) UploadRenderResources() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	budget := pm.cfg.UploadBudgetPagesPerFrame
	uploaded := int32(0)
	for _, rec := range pm.records {
		if budget > 0 && uploaded >= budget {
			break
		}
		if rec.State == StateReadyCpu {
			uploaded++
		}
	}
	pm.telemetry.UploadCalls++
	pm.telemetry.PagesUploaded = uploaded
}

// ReleaseRenderResources clears upload-side bookkeeping; there is no
// real GPU handle in this core to release.
func (pm *PageManager) ReleaseRenderResources() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.telemetry.PagesUploaded = 0
}

// Reset cancels every in-flight build, joins the worker pool, and
// drops all page records.
func (pm *PageManager) Reset() {
	pm.mu.Lock()
	for _, rec := range pm.records {
		if rec.Cancel != nil {
			rec.Cancel.Cancel()
		}
	}
	pm.mu.Unlock()

	pm.inFlight.Wait()
	for {
		select {
		case <-pm.completions:
		default:
			pm.mu.Lock()
			pm.records = make(map[VoxelPageKey]*PageRecord)
			pm.telemetry = newTelemetry()
			pm.logger.Infof("page pipeline: reset")
			pm.mu.Unlock()
			return
		}
	}
}

func (pm *PageManager) TelemetrySnapshot() Telemetry {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.telemetry.clone()
}

func (pm *PageManager) PageCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.records)
}

func (pm *PageManager) PageInfo(key VoxelPageKey) (PageInfo, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	rec, ok := pm.records[key]
	if !ok {
		return PageInfo{}, false
	}
	return rec.info(), true
}

// PageCpu returns the ready page's sampled L0 data and mip pyramid, for
// an external consumer (surface extraction, debug tooling) to read. ok
// is false for any page not currently at StateReadyCpu, since L0/Mips
// are only valid once a build has completed.
func (pm *PageManager) PageCpu(key VoxelPageKey) (VoxelPageCpu, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	rec, ok := pm.records[key]
	if !ok || rec.State != StateReadyCpu {
		return VoxelPageCpu{}, false
	}
	return rec.Cpu, true
}

// CollectDebugPages appends every resident page's info snapshot to out.
func (pm *PageManager) CollectDebugPages(out *[]PageInfo) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for _, rec := range pm.records {
		*out = append(*out, rec.info())
	}
}
