package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

func TestBuildSurfaceMeshFromQuadsVertexAndIndexCounts(t *testing.T) {
	quads := []SurfaceQuad{
		{Normal: PosX, CellMin: [3]int32{0, 0, 0}, Span: [2]int32{2, 3}, Material: stoneId},
		{Normal: NegZ, CellMin: [3]int32{1, 1, 0}, Span: [2]int32{1, 1}, Material: stoneId},
	}

	mesh := BuildSurfaceMeshFromQuads(quads, 4, nil)
	require.Len(t, mesh.Vertices, 8, "expected 4 vertices per quad")
	require.Len(t, mesh.Indices, 12, "expected 6 indices per quad")
	for _, v := range mesh.Vertices {
		assert.Equal(t, uint8(aoUnoccluded), v.AOLevel, "every LOD vertex carries AOLevel 3")
	}
	assert.Equal(t, uint8(PosX), mesh.Vertices[0].NormalIndex)

	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices[:6], "expected winding (0,1,2,0,2,3)")
}

func TestBuildSurfaceMeshFromQuadsScalesByCellSize(t *testing.T) {
	quads := []SurfaceQuad{
		{Normal: PosX, CellMin: [3]int32{1, 0, 0}, Span: [2]int32{1, 1}, Material: stoneId},
	}
	mesh := BuildSurfaceMeshFromQuads(quads, 8, nil)
	for _, v := range mesh.Vertices {
		if v.Position.X() != 16 {
			t.Fatalf("expected the +X face to sit at x=cellMin.x*cellSize+cellSize=16, got %v", v.Position.X())
		}
	}
}

func TestBuildSurfaceMeshFromQuadsLooksUpTextureLayer(t *testing.T) {
	quads := []SurfaceQuad{
		{Normal: PosY, CellMin: [3]int32{0, 0, 0}, Span: [2]int32{1, 1}, Material: stoneId},
	}
	layers := map[voxelsource.VoxelId][6]int32{
		stoneId: {0, 1, 2, 3, 4, 5},
	}
	mesh := BuildSurfaceMeshFromQuads(quads, 1, layers)
	for _, v := range mesh.Vertices {
		if v.TextureLayer != 2 {
			t.Fatalf("expected the +Y face to look up layers[PosY]=2, got %d", v.TextureLayer)
		}
	}
}
