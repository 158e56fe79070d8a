// Package blockreg holds the block type table the rest of the engine core
// samples against: opacity and solidity for chunk counters, render layer and
// per-face texture references for surface extraction.
package blockreg

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

// BlockId is a dense, registration-order identifier. 0 is always Air.
type BlockId uint16

const Air BlockId = 0

// RenderLayer buckets a block for the surface/rendering pipeline.
type RenderLayer uint8

const (
	LayerOpaque RenderLayer = iota
	LayerCutout
	LayerTransparent
	LayerEmissive
)

// BlockType is the normalized, schema-relevant record for one block.
// FaceTextureLayers is indexed by the same Direction ordering the surface
// package uses (+x,-x,+y,-y,+z,-z).
type BlockType struct {
	Identifier        string
	Opaque            bool
	Solid             bool
	CullSameType      bool
	EmittedLight      uint8 // 0..15
	LightAttenuation  uint8 // 0..15
	RenderLayer       RenderLayer
	FaceTextureLayers [6]int32
}

func (bt BlockType) clampLight() BlockType {
	if bt.EmittedLight > 15 {
		bt.EmittedLight = 15
	}
	if bt.LightAttenuation > 15 {
		bt.LightAttenuation = 15
	}
	return bt
}

// Registry assigns dense BlockIds to BlockType records in registration order
// and exposes a stable hash over its normalized contents.
type Registry struct {
	types []BlockType // index 0 is the synthetic Air entry
	byId  map[string]BlockId
}

// NewRegistry returns a registry pre-seeded with the reserved Air entry.
func NewRegistry() *Registry {
	r := &Registry{
		types: []BlockType{{Identifier: "air"}},
		byId:  map[string]BlockId{"air": Air},
	}
	return r
}

// Register assigns the next dense id to bt and returns it. Registering a
// duplicate Identifier is an error; the registry is left unchanged.
func (r *Registry) Register(bt BlockType) (BlockId, error) {
	if bt.Identifier == "" {
		return 0, fmt.Errorf("blockreg: %w: empty identifier", xerr.ErrInvalidInput)
	}
	if _, exists := r.byId[bt.Identifier]; exists {
		return 0, fmt.Errorf("blockreg: %w: duplicate identifier %q", xerr.ErrInvalidInput, bt.Identifier)
	}
	bt = bt.clampLight()
	id := BlockId(len(r.types))
	r.types = append(r.types, bt)
	r.byId[bt.Identifier] = id
	return id, nil
}

// Lookup returns the BlockType for id, or a zero-valued BlockType if id
// is out of range.
func (r *Registry) Lookup(id BlockId) BlockType {
	if int(id) >= len(r.types) {
		return BlockType{}
	}
	return r.types[id]
}

// IsRegistered reports whether id has an entry in the registry. Air (0)
// is always registered.
func (r *Registry) IsRegistered(id BlockId) bool {
	return int(id) < len(r.types)
}

// IdFor resolves an identifier string to its BlockId.
func (r *Registry) IdFor(identifier string) (BlockId, bool) {
	id, ok := r.byId[identifier]
	return id, ok
}

// IsOpaque reports whether id counts toward a chunk's opaqueCount.
func (r *Registry) IsOpaque(id BlockId) bool {
	if id == Air {
		return false
	}
	return r.Lookup(id).Opaque
}

// IsSolid reports whether id is walkable-blocking for the purposes that
// care about solidity rather than opacity (e.g. glass is solid but not
// opaque).
func (r *Registry) IsSolid(id BlockId) bool {
	if id == Air {
		return false
	}
	return r.Lookup(id).Solid
}

// Len returns the number of registered types including the reserved Air
// entry.
func (r *Registry) Len() int { return len(r.types) }

// SnapshotHash returns a stable 64-bit hash over the registry's normalized
// contents, taken in Identifier order. Two registries holding the same
// blocks produce identical hashes whatever order the blocks were
// registered in; changing any schema-relevant field of any entry changes
// the hash.
func (r *Registry) SnapshotHash() uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	sorted := make([]BlockType, len(r.types))
	copy(sorted, r.types)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identifier < sorted[j].Identifier })
	for _, bt := range sorted {
		h.WriteString(bt.Identifier)
		h.Write([]byte{0}) // separator, identifiers may not contain NUL
		var flags uint8
		if bt.Opaque {
			flags |= 1 << 0
		}
		if bt.Solid {
			flags |= 1 << 1
		}
		if bt.CullSameType {
			flags |= 1 << 2
		}
		h.Write([]byte{flags, bt.EmittedLight, bt.LightAttenuation, uint8(bt.RenderLayer)})
		for _, layer := range bt.FaceTextureLayers {
			writeU64(uint64(uint32(layer)))
		}
	}
	return h.Sum64()
}
