package hostsim

import "prism/client/internal/telemetry"

// Heap estimates client memory from scene geometry and resident textures.
type Heap struct {
	Scene          *Scene
	Textures       *Textures
	Base           uint64
	BytesPerVertex uint64
	Limit          uint64
}

// ReadHeap implements telemetry.HeapReader. Without a limit the host is
// treated as offering no heap introspection.
func (h *Heap) ReadHeap() (telemetry.HeapStats, bool) {
	if h == nil || h.Limit == 0 {
		return telemetry.HeapStats{}, false
	}
	used := h.Base
	if h.Scene != nil {
		used += uint64(h.Scene.TotalVertices()) * h.BytesPerVertex
	}
	if h.Textures != nil {
		used += h.Textures.Bytes()
	}
	return telemetry.HeapStats{Used: used, Total: used + used/4, Limit: h.Limit}, true
}
