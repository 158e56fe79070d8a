// Package lod computes the near/far transition math and camera-driven
// visibility hysteresis the page pipeline uses to decide which chunks get
// a near mesh, which pages fade in as far LOD, and which chunk-store
// edits need to reach which clipmap cells. Grounded on the teacher's
// CameraState (mgl32-based camera state feeding the render loop) and its
// frustum/distance math in voxelrt/rt/core/camera.go.
package lod

import "github.com/gekko3d/voxelsvo/voxelrt/config"

// epsilon is the minimum meaningful fade band width; narrower bands
// collapse computeFarFade to a hard step.
const epsilon = 1e-4

// Transition holds the derived world-space radii for one evaluation of a
// config: the near-mesh crossover and the far-fade band endpoints.
type Transition struct {
	NearRadiusWorld   float32
	FarFadeStartWorld float32
	FarFadeEndWorld   float32
}

// ComputeTransition derives the near/far radii from cfg. chunkSize is the
// world-space edge length of one chunk (chunkstore.ChunkSize).
//
// farFadeStartWorld and farFadeEndWorld are built from startRadiusChunks
// and transitionBandChunks alone, floored at zero; nearRadiusWorld is
// reported separately as the near-mesh crossover and does not bound the
// far-fade band, so the band can start before the near mesh ends and
// cross-fade against it (ShouldRenderNear widens its entry threshold to
// cover the gap when the band starts beyond the near radius instead).
func ComputeTransition(cfg config.VoxelSvoConfig, chunkSize int32) Transition {
	nearRadius := float32(cfg.NearMeshRadiusChunks * chunkSize)
	startRadius := float32(cfg.StartRadiusChunks * chunkSize)
	band := float32(cfg.TransitionBandChunks * chunkSize)

	fadeStart := startRadius - band
	if fadeStart < 0 {
		fadeStart = 0
	}
	fadeEnd := startRadius + band
	if fadeEnd < fadeStart {
		fadeEnd = fadeStart
	}

	return Transition{
		NearRadiusWorld:   nearRadius,
		FarFadeStartWorld: fadeStart,
		FarFadeEndWorld:   fadeEnd,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ComputeFarFade returns the far-LOD blend weight for dist, 0 at
// farFadeStart and 1 at farFadeEnd. A band narrower than epsilon
// collapses to a hard 1.
func (t Transition) ComputeFarFade(dist float32) float32 {
	width := t.FarFadeEndWorld - t.FarFadeStartWorld
	if width <= epsilon {
		return 1
	}
	return clamp01((dist - t.FarFadeStartWorld) / width)
}
