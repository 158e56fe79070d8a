package lod

// VisibilityState tracks one cell's near/far visibility state across
// frames, avoiding flicker when a camera sits near a threshold.
type VisibilityState struct {
	NearVisible bool
	FarVisible  bool
}

// ShouldRenderNear applies near-mesh hysteresis: the cell enters near
// visibility at distSq <= nearEnter^2, and once visible stays visible
// until distSq > nearExit^2 (the far-fade band's end), so the near mesh
// and the fading-in far LOD overlap across the whole band instead of
// popping. nearEnter widens to farFadeStartWorld when the fade band
// starts beyond the near radius, so there's no dead zone between them.
func (t Transition) ShouldRenderNear(distSq float32, wasVisible bool) bool {
	nearEnter := t.NearRadiusWorld
	if t.FarFadeStartWorld > nearEnter {
		nearEnter = t.FarFadeStartWorld
	}
	if distSq <= nearEnter*nearEnter {
		return true
	}
	if !wasVisible {
		return false
	}
	nearExit := t.FarFadeEndWorld
	return distSq <= nearExit*nearExit
}

// ShouldRenderFar reports whether far LOD is visible at distSq: beyond
// the fade band's start and inside the renderDistanceSq ceiling. Unlike
// ShouldRenderNear, far visibility carries no hysteresis of its own; the
// fade band itself is the crossfade, so there is nothing left to debounce.
func (t Transition) ShouldRenderFar(distSq float32, renderDistanceSq float32) bool {
	if distSq > renderDistanceSq {
		return false
	}
	return distSq >= t.FarFadeStartWorld*t.FarFadeStartWorld
}

// Update computes the next state from s given the squared camera distance
// and render-distance ceiling and returns it; s itself is not modified.
func (t Transition) Update(s VisibilityState, distSq, renderDistanceSq float32) VisibilityState {
	return VisibilityState{
		NearVisible: t.ShouldRenderNear(distSq, s.NearVisible),
		FarVisible:  t.ShouldRenderFar(distSq, renderDistanceSq),
	}
}
