package surface

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/chunkstore"
	"github.com/gekko3d/voxelsvo/voxelrt/config"
	"github.com/gekko3d/voxelsvo/voxelrt/svo"
	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

// TestSurfaceExtractionFromPipelinePage drives a real PageManager to a
// ready page and extracts a mesh from it, exercising the page-to-mesh
// path (PageManager.PageCpu -> BuildMacroGridFromPage ->
// ExtractSurfaceQuadsGreedy -> BuildSurfaceMeshFromQuads) end to end
// instead of only against the package's synthetic uniformPageCpu pages.
func TestSurfaceExtractionFromPipelinePage(t *testing.T) {
	registry := blockreg.NewRegistry()
	stone, err := registry.Register(blockreg.BlockType{Identifier: "stone", Opaque: true, Solid: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	manager := chunkstore.NewChunkManager()
	manager.SetRegistry(registry)

	pm := svo.NewPageManager()
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
			if i%2 == 0 {
				out[i] = chunkstore.BlockState{Id: stone}
			}
		}
		return true
	})
	pm.Initialize()

	var ready svo.VoxelPageCpu
	found := false
	for f := uint64(0); f < 50 && !found; f++ {
		pm.Update(mgl32.Vec3{0, 0, 0}, f)
		var infos []svo.PageInfo
		pm.CollectDebugPages(&infos)
		for _, info := range infos {
			if info.State != svo.StateReadyCpu {
				continue
			}
			if cpu, ok := pm.PageCpu(info.Key); ok {
				ready = cpu
				found = true
				break
			}
		}
		if !found {
			time.Sleep(time.Millisecond)
		}
	}
	if !found {
		t.Fatal("no page reached ReadyCpu with a retrievable PageCpu after 50 frames")
	}

	grid, err := BuildMacroGridFromPage(ready, 1)
	if err != nil {
		t.Fatalf("BuildMacroGridFromPage: %v", err)
	}

	var quads []SurfaceQuad
	ExtractSurfaceQuadsGreedy(grid, OutsideEmpty, &quads)

	if len(quads) == 0 {
		t.Fatal("expected the striped page to produce at least one surface quad")
	}

	mesh := BuildSurfaceMeshFromQuads(quads, grid.CellSizeVoxels, nil)
	if len(mesh.Indices)%6 != 0 {
		t.Fatalf("expected a multiple of 6 indices (2 triangles per quad), got %d", len(mesh.Indices))
	}
	if len(mesh.Vertices)%4 != 0 {
		t.Fatalf("expected a multiple of 4 vertices (1 quad per 4 verts), got %d", len(mesh.Vertices))
	}
}
