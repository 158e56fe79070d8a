package svo

// Telemetry mirrors the fixed counter set from the page pipeline. Fields
// are plain counters rather than an open scope registry, since the set
// is closed and known ahead of time.
type Telemetry struct {
	UpdateCalls   uint64
	UploadCalls   uint64
	BricksSampled uint64
	VoxelsSampled uint64

	LoadedHits      uint64
	PersistenceHits uint64
	GeneratorHits   uint64

	MipBuildMicros int64

	ActivePages   int32
	PagesQueued   int32
	PagesBuilding int32
	PagesReadyCpu int32
	PagesUploaded int32

	ReadyCpuPagesPerLevel map[int32]int32
	ReadyCpuNodesPerLevel map[int32]int64

	CpuBytesCurrent int64
	GpuBytesCurrent int64
}

func newTelemetry() Telemetry {
	return Telemetry{
		ReadyCpuPagesPerLevel: make(map[int32]int32),
		ReadyCpuNodesPerLevel: make(map[int32]int64),
	}
}

// clone returns a value copy safe to hand to external observers, since
// the map fields would otherwise alias the pipeline's live state.
func (t Telemetry) clone() Telemetry {
	out := t
	out.ReadyCpuPagesPerLevel = make(map[int32]int32, len(t.ReadyCpuPagesPerLevel))
	for k, v := range t.ReadyCpuPagesPerLevel {
		out.ReadyCpuPagesPerLevel[k] = v
	}
	out.ReadyCpuNodesPerLevel = make(map[int32]int64, len(t.ReadyCpuNodesPerLevel))
	for k, v := range t.ReadyCpuNodesPerLevel {
		out.ReadyCpuNodesPerLevel[k] = v
	}
	return out
}
