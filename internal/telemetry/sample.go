package telemetry

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"
)

// MemorySample is one timestamped snapshot of memory and rendering counters.
type MemorySample struct {
	Timestamp        time.Time `json:"timestamp"`
	HeapUsed         uint64    `json:"heapUsed"`
	HeapTotal        uint64    `json:"heapTotal"`
	HeapLimit        uint64    `json:"heapLimit"`
	HeapUsagePercent float64   `json:"heapUsagePercent"`
	DrawCalls        int       `json:"drawCalls"`
	// DrawCallsEstimated is set when the renderer could not report draw calls
	// and the active mesh count was used instead.
	DrawCallsEstimated bool `json:"drawCallsEstimated"`
	ActiveMeshes       int  `json:"activeMeshes"`
	ActiveVertices     int  `json:"activeVertices"`
	ActiveIndices      int  `json:"activeIndices"`
	ActiveBones        int  `json:"activeBones"`
	ActiveTextures     int  `json:"activeTextures"`
}

// VerticesMillions reports the active vertex count in millions.
func (s MemorySample) VerticesMillions() float64 {
	return float64(s.ActiveVertices) / 1e6
}

// HeapStats is what a HeapReader reports.
type HeapStats struct {
	Used  uint64
	Total uint64
	Limit uint64
}

// HeapReader reads heap statistics from the host. ok is false when the host
// offers no heap introspection.
type HeapReader interface {
	ReadHeap() (stats HeapStats, ok bool)
}

// SceneObject is the telemetry view of one visual object.
type SceneObject struct {
	ID       string
	Visible  bool
	Vertices int
	Indices  int
	Bones    int
	Textures int
}

// Scene enumerates the visual objects currently in the scene.
type Scene interface {
	Objects() []SceneObject
}

// DrawCallReporter reports the draw calls issued for the last frame. ok is
// false when the renderer does not expose the counter.
type DrawCallReporter interface {
	DrawCalls() (calls int, ok bool)
}

// RuntimeHeap reads the Go runtime's heap statistics. Limit overrides the
// runtime soft memory limit; with neither set the limit reads as zero.
type RuntimeHeap struct {
	Limit uint64
}

// ReadHeap implements HeapReader.
func (h RuntimeHeap) ReadHeap() (HeapStats, bool) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	limit := h.Limit
	if limit == 0 {
		// A negative argument only queries the current limit.
		if soft := debug.SetMemoryLimit(-1); soft > 0 && soft != math.MaxInt64 {
			limit = uint64(soft)
		}
	}
	return HeapStats{Used: stats.HeapAlloc, Total: stats.HeapSys, Limit: limit}, true
}

func heapPercent(used, limit uint64) float64 {
	if limit == 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
