package surface

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelsvo/voxelrt/voxelsource"
)

// aoUnoccluded is the ambient-occlusion level LOD meshes always carry:
// far-field meshes never compute per-vertex AO.
const aoUnoccluded = 3

// Vertex is one ChunkMesh vertex: position in page-local voxel
// coordinates, the quad's normal index, an AO level, and the per-voxel
// face texture layer.
type Vertex struct {
	Position     mgl32.Vec3
	NormalIndex  uint8
	AOLevel      uint8
	TextureLayer int32
}

// ChunkMesh is the flat vertex/index buffer a quad list builds into.
type ChunkMesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// cornerOffsets returns the four page-local-voxel-space corners of a
// quad in a fixed per-normal order, consistent with the near-field mesh
// builder's winding.
func cornerOffsets(dir Direction, minU, minV, spanU, spanV float32) [4]mgl32.Vec3 {
	maxU := minU + spanU
	maxV := minV + spanV

	switch dir {
	case PosX:
		return [4]mgl32.Vec3{{1, minV, minU}, {1, minV, maxU}, {1, maxV, maxU}, {1, maxV, minU}}
	case NegX:
		return [4]mgl32.Vec3{{0, minV, maxU}, {0, minV, minU}, {0, maxV, minU}, {0, maxV, maxU}}
	case PosY:
		return [4]mgl32.Vec3{{minU, 1, maxV}, {maxU, 1, maxV}, {maxU, 1, minV}, {minU, 1, minV}}
	case NegY:
		return [4]mgl32.Vec3{{minU, 0, minV}, {maxU, 0, minV}, {maxU, 0, maxV}, {minU, 0, maxV}}
	case PosZ:
		return [4]mgl32.Vec3{{maxU, minV, 1}, {minU, minV, 1}, {minU, maxV, 1}, {maxU, maxV, 1}}
	default: // NegZ
		return [4]mgl32.Vec3{{minU, minV, 0}, {maxU, minV, 0}, {maxU, maxV, 0}, {minU, maxV, 0}}
	}
}

// BuildSurfaceMeshFromQuads emits four vertices and two triangles
// ((0,1,2,0,2,3) winding) per quad. Positions are in page-local voxel
// coordinates: cellMin*cellSizeVoxels to (cellMin+span)*cellSizeVoxels on
// the quad's plane, and the normal's own axis at the cell boundary:
// cellMin*cellSizeVoxels for negative normals, (cellMin+1)*cellSizeVoxels
// for positive ones.
func BuildSurfaceMeshFromQuads(quads []SurfaceQuad, cellSizeVoxels int32, faceTextureLayersByVoxelId map[voxelsource.VoxelId][6]int32) ChunkMesh {
	mesh := ChunkMesh{}
	size := float32(cellSizeVoxels)

	for _, q := range quads {
		u, v, w := q.Normal.planeAxes()
		minU := float32(q.CellMin[u]) * size
		minV := float32(q.CellMin[v]) * size
		spanU := float32(q.Span[0]) * size
		spanV := float32(q.Span[1]) * size
		wCoord := float32(q.CellMin[w]) * size
		if q.Normal == PosX || q.Normal == PosY || q.Normal == PosZ {
			wCoord += size
		}

		corners := cornerOffsets(q.Normal, minU, minV, spanU, spanV)
		var texLayer int32
		if layers, ok := faceTextureLayersByVoxelId[q.Material]; ok {
			texLayer = layers[q.Normal]
		}

		base := uint32(len(mesh.Vertices))
		for _, c := range corners {
			pos := planeToWorld(q.Normal, c, wCoord)
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Position:     pos,
				NormalIndex:  uint8(q.Normal),
				AOLevel:      aoUnoccluded,
				TextureLayer: texLayer,
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base, base+2, base+3)
	}

	return mesh
}

// planeToWorld replaces corner's placeholder axis-aligned component (the
// constant 0/1 baked into cornerOffsets for the normal axis) with the
// real world coordinate along that axis.
func planeToWorld(dir Direction, corner mgl32.Vec3, wCoord float32) mgl32.Vec3 {
	switch dir {
	case PosX, NegX:
		return mgl32.Vec3{wCoord, corner.Y(), corner.Z()}
	case PosY, NegY:
		return mgl32.Vec3{corner.X(), wCoord, corner.Z()}
	default:
		return mgl32.Vec3{corner.X(), corner.Y(), wCoord}
	}
}
