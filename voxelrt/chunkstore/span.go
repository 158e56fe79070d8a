package chunkstore

import (
	"fmt"

	"github.com/gekko3d/voxelsvo/voxelrt/blockreg"
	"github.com/gekko3d/voxelsvo/voxelrt/xerr"
)

// ChunkSpan describes a rectangular sub-volume of one chunk. A full span
// covers offset 0, size ChunkSize on every axis; a subchunk span has size
// SubchunkSize with offsets that are multiples of SubchunkSize.
type ChunkSpan struct {
	ChunkXYZ  ChunkCoord
	OffsetXYZ [3]int32
	SizeXYZ   [3]int32
}

// Validate checks the non-negative-offset, positive-size, and
// fits-inside-chunk invariants.
func (s ChunkSpan) Validate() error {
	for axis := 0; axis < 3; axis++ {
		if s.OffsetXYZ[axis] < 0 {
			return fmt.Errorf("chunkstore: %w: negative offset on axis %d", xerr.ErrInvalidInput, axis)
		}
		if s.SizeXYZ[axis] <= 0 {
			return fmt.Errorf("chunkstore: %w: non-positive size on axis %d", xerr.ErrInvalidInput, axis)
		}
		if s.OffsetXYZ[axis]+s.SizeXYZ[axis] > ChunkSize {
			return fmt.Errorf("chunkstore: %w: span exceeds chunk bounds on axis %d", xerr.ErrInvalidInput, axis)
		}
	}
	return nil
}

// IsFull reports whether the span covers the entire chunk.
func (s ChunkSpan) IsFull() bool {
	return s.OffsetXYZ == [3]int32{0, 0, 0} && s.SizeXYZ == [3]int32{ChunkSize, ChunkSize, ChunkSize}
}

// Volume returns the number of blocks the span covers.
func (s ChunkSpan) Volume() int {
	return int(s.SizeXYZ[0]) * int(s.SizeXYZ[1]) * int(s.SizeXYZ[2])
}

// subchunkMaskBit returns the subchunk bit this span aligns to and whether
// the span is exactly one aligned subchunk.
func (s ChunkSpan) subchunkMaskBit() (bit int, ok bool) {
	if s.SizeXYZ != [3]int32{SubchunkSize, SubchunkSize, SubchunkSize} {
		return 0, false
	}
	for axis := 0; axis < 3; axis++ {
		if s.OffsetXYZ[axis]%SubchunkSize != 0 {
			return 0, false
		}
	}
	sx := s.OffsetXYZ[0] / SubchunkSize
	sy := s.OffsetXYZ[1] / SubchunkSize
	sz := s.OffsetXYZ[2] / SubchunkSize
	return int(sx + 2*sy + 4*sz), true
}

// ChunkData is the dense block payload for a ChunkSpan, laid out
// x + z*sizeX + y*sizeX*sizeZ (Y outermost, matching the persistence
// convention).
type ChunkData struct {
	Span   ChunkSpan
	Blocks []BlockState
}

func (d ChunkData) indexAt(x, y, z int32) int {
	sizeX, sizeZ := d.Span.SizeXYZ[0], d.Span.SizeXYZ[2]
	return int(x + z*sizeX + y*sizeX*sizeZ)
}

// applyChunkData writes d's blocks into c at d.Span's offset.
func applyChunkData(c *Chunk, registry *blockreg.Registry, d ChunkData) error {
	if err := d.Span.Validate(); err != nil {
		return err
	}
	if len(d.Blocks) != d.Span.Volume() {
		return fmt.Errorf("chunkstore: %w: ChunkData blocks len %d, want %d", xerr.ErrInvalidInput, len(d.Blocks), d.Span.Volume())
	}
	off := d.Span.OffsetXYZ
	size := d.Span.SizeXYZ
	for z := int32(0); z < size[2]; z++ {
		for y := int32(0); y < size[1]; y++ {
			for x := int32(0); x < size[0]; x++ {
				state := d.Blocks[d.indexAt(x, y, z)]
				c.SetBlock(off[0]+x, off[1]+y, off[2]+z, state, registry)
			}
		}
	}
	return nil
}

// MergeResult reports what mergeChunkSpans actually did.
type MergeResult struct {
	LoadedFromDisk bool
	FullSpan       bool
	SubchunkMask   uint8
	AppliedBase    bool
}

// BaseFillFunc fills a chunk's blocks before spans are applied, typically
// via world generation. It must leave spans-covered regions alone-friendly,
// since those are overwritten afterward anyway.
type BaseFillFunc func(c *Chunk, registry *blockreg.Registry)

// mergeChunkSpans composes a chunk from zero or more snapshot spans.
// Conflicting spans are applied in input order; later writes win. If no
// full span exists and the union of aligned subchunk spans is not all 8
// subchunks, baseFill (when non-nil) is invoked first so generation fills
// any region the spans don't cover. Fails with InvalidInput if any span's
// bounds are illegal.
func mergeChunkSpans(c *Chunk, registry *blockreg.Registry, spans []ChunkData, baseFill BaseFillFunc) (MergeResult, error) {
	var result MergeResult

	for _, d := range spans {
		if err := d.Span.Validate(); err != nil {
			return MergeResult{}, err
		}
		if d.Span.IsFull() {
			result.FullSpan = true
		}
		if bit, ok := d.Span.subchunkMaskBit(); ok {
			result.SubchunkMask |= 1 << uint(bit)
		}
	}

	if len(spans) > 0 {
		result.LoadedFromDisk = true
	}

	if !result.FullSpan && result.SubchunkMask != 0xFF && baseFill != nil {
		baseFill(c, registry)
		result.AppliedBase = true
	}

	for _, d := range spans {
		if err := applyChunkData(c, registry, d); err != nil {
			return MergeResult{}, err
		}
	}

	return result, nil
}

// MergeChunkSpans is the exported entry point for mergeChunkSpans.
func MergeChunkSpans(c *Chunk, registry *blockreg.Registry, spans []ChunkData, baseFill BaseFillFunc) (MergeResult, error) {
	return mergeChunkSpans(c, registry, spans, baseFill)
}
