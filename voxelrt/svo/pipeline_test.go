package svo

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
	"github.com/gekko3d/voxelsvo/voxelrt/config"
	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

// recordingLogger counts Infof/Debugf/Warnf calls for assertions without
// caring about message text; Errorf calls are discarded.
type recordingLogger struct {
	mu                               sync.Mutex
	infoCount, debugCount, warnCount int
}

func (l *recordingLogger) DebugEnabled() bool     { return true }
func (l *recordingLogger) SetDebug(enabled bool)  {}
func (l *recordingLogger) Debugf(format string, args ...any) {
	l.mu.Lock()
	l.debugCount++
	l.mu.Unlock()
}
func (l *recordingLogger) Infof(format string, args ...any) {
	l.mu.Lock()
	l.infoCount++
	l.mu.Unlock()
}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	l.warnCount++
	l.mu.Unlock()
}
func (l *recordingLogger) Errorf(format string, args ...any) {}

func (l *recordingLogger) counts() (info, debug, warn int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.infoCount, l.debugCount, l.warnCount
}

func waitForReady(t *testing.T, pm *PageManager, cam mgl32.Vec3, frames uint64) {
	t.Helper()
	for f := uint64(0); f < frames; f++ {
		pm.Update(cam, f)
		if pm.TelemetrySnapshot().PagesReadyCpu > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPageManagerBuildsReadyPages(t *testing.T) {
	registry := blockreg.NewRegistry()
	stone, err := registry.Register(blockreg.BlockType{Identifier: "stone", Opaque: true, Solid: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := NewPageManager()
	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.PageSizeVoxels = 8
	cfg.MinLeafVoxels = 2
	cfg.StartRadiusChunks = 1
	cfg.NearMeshRadiusChunks = 1
	cfg.MaxRadiusChunks = 1
	pm.SetConfig(cfg)
	pm.Bind(manager, registry)
	pm.SetChunkGenerator(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *voxelsource.CancelFlag) bool {
		for i := range out {
			out[i] = chunkstore.BlockState{Id: stone}
		}
		return true
	})
	pm.Initialize()

	waitForReady(t, pm, mgl32.Vec3{0, 0, 0}, 50)

	tel := pm.TelemetrySnapshot()
	if tel.PagesReadyCpu == 0 {
		t.Fatal("no page reached ReadyCpu after 50 frames")
	}
	if tel.GeneratorHits == 0 {
		t.Fatal("GeneratorHits == 0, want at least one generator-backed build")
	}

	var infos []PageInfo
	pm.CollectDebugPages(&infos)
	foundReady := false
	for _, info := range infos {
		if info.State == StateReadyCpu {
			foundReady = true
			if info.NodeCount == 0 {
				t.Fatal("ready page has NodeCount == 0")
			}
		}
	}
	if !foundReady {
		t.Fatal("CollectDebugPages reported no ReadyCpu page")
	}

	pm.Reset()
	if pm.PageCount() != 0 {
		t.Fatalf("PageCount after Reset = %d, want 0", pm.PageCount())
	}
}

func TestPageManagerRespectsResidentPageLimit(t *testing.T) {
	registry := blockreg.NewRegistry()
	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := NewPageManager()
	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.PageSizeVoxels = 8
	cfg.MinLeafVoxels = 2
	cfg.StartRadiusChunks = 4
	cfg.NearMeshRadiusChunks = 4
	cfg.MaxRadiusChunks = 4
	cfg.MaxResidentPages = 1
	pm.SetConfig(cfg)
	pm.Bind(manager, registry)
	pm.SetChunkGenerator(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *voxelsource.CancelFlag) bool {
		return true
	})
	pm.Initialize()

	pm.Update(mgl32.Vec3{0, 0, 0}, 0)
	firstCount := pm.PageCount()
	if firstCount <= 1 {
		t.Fatalf("expected the clipmap cube to seed more than 1 page, got %d", firstCount)
	}

	var firstKeys []VoxelPageKey
	var infos []PageInfo
	pm.CollectDebugPages(&infos)
	for _, info := range infos {
		firstKeys = append(firstKeys, info.Key)
	}

	// Move far enough that the desired cube no longer overlaps the
	// original one; records outside the new desired set and over the
	// resident-page budget should be evicted.
	farCam := mgl32.Vec3{100000, 0, 0}
	for f := uint64(1); f < 5; f++ {
		pm.Update(farCam, f)
	}

	infos = nil
	pm.CollectDebugPages(&infos)
	stillPresent := make(map[VoxelPageKey]bool)
	for _, info := range infos {
		stillPresent[info.Key] = true
	}
	for _, k := range firstKeys {
		if stillPresent[k] {
			t.Fatalf("original page %+v survived eviction after camera moved away under a 1-page budget", k)
		}
	}
}

func TestPageManagerUpdateSetsNearVisibilityForCloseCamera(t *testing.T) {
	registry := blockreg.NewRegistry()
	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := NewPageManager()
	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.PageSizeVoxels = 8
	cfg.MinLeafVoxels = 2
	cfg.StartRadiusChunks = 4
	cfg.NearMeshRadiusChunks = 4
	cfg.MaxRadiusChunks = 4
	pm.SetConfig(cfg)
	pm.Bind(manager, registry)
	pm.SetChunkGenerator(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *voxelsource.CancelFlag) bool {
		return true
	})
	pm.Initialize()

	pm.Update(mgl32.Vec3{0, 0, 0}, 0)

	var infos []PageInfo
	pm.CollectDebugPages(&infos)
	if len(infos) == 0 {
		t.Fatal("expected Update to have seeded at least one page")
	}
	foundNear := false
	for _, info := range infos {
		if info.Key.Level == 0 && info.Visibility.NearVisible {
			foundNear = true
		}
	}
	if !foundNear {
		t.Fatal("expected the page at the origin to be near-visible right after seeding at the camera")
	}
}

func TestPageManagerInvalidatesPagesCoveringAnEditedChunk(t *testing.T) {
	registry := blockreg.NewRegistry()
	stone, err := registry.Register(blockreg.BlockType{Identifier: "stone", Opaque: true, Solid: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := NewPageManager()
	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.PageSizeVoxels = 8
	cfg.MinLeafVoxels = 2
	cfg.StartRadiusChunks = 1
	cfg.NearMeshRadiusChunks = 1
	cfg.MaxRadiusChunks = 1
	pm.SetConfig(cfg)
	pm.Bind(manager, registry)
	pm.SetChunkGenerator(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *voxelsource.CancelFlag) bool {
		return true
	})
	pm.Initialize()

	waitForReady(t, pm, mgl32.Vec3{0, 0, 0}, 50)

	key := VoxelPageKey{Level: 0, X: 0, Y: 0, Z: 0}
	before, ok := pm.PageInfo(key)
	if !ok {
		t.Fatal("expected the page at the origin to exist after seeding")
	}

	manager.SetBlock(0, 0, 0, chunkstore.BlockState{Id: stone})

	pm.Update(mgl32.Vec3{0, 0, 0}, 51)

	after, ok := pm.PageInfo(key)
	if !ok {
		t.Fatal("expected the page at the origin to still exist")
	}
	if after.DesiredRevision <= before.DesiredRevision {
		t.Fatalf("expected editing chunk (0,0,0) to bump the covering page's desired revision, before=%d after=%d",
			before.DesiredRevision, after.DesiredRevision)
	}
}

func TestPageManagerLogsPoolResizeAndEvictions(t *testing.T) {
	registry := blockreg.NewRegistry()
	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := NewPageManager()
	logger := &recordingLogger{}
	pm.SetLogger(logger)

	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.PageSizeVoxels = 8
	cfg.MinLeafVoxels = 2
	cfg.StartRadiusChunks = 4
	cfg.NearMeshRadiusChunks = 4
	cfg.MaxRadiusChunks = 4
	cfg.MaxResidentPages = 1
	pm.SetConfig(cfg)
	pm.Bind(manager, registry)
	pm.SetChunkGenerator(func(coord chunkstore.ChunkCoord, out []chunkstore.BlockState, cancel *voxelsource.CancelFlag) bool {
		return true
	})
	pm.SetBuildThreads(2)
	pm.Initialize()

	if info, _, _ := logger.counts(); info < 2 {
		t.Fatalf("expected SetBuildThreads and Initialize to each log at Infof, got %d Infof calls", info)
	}

	pm.Update(mgl32.Vec3{0, 0, 0}, 0)
	farCam := mgl32.Vec3{100000, 0, 0}
	for f := uint64(1); f < 5; f++ {
		pm.Update(farCam, f)
	}

	if _, debug, _ := logger.counts(); debug == 0 {
		t.Fatalf("expected eviction under the 1-page budget to log at Debugf")
	}
}
