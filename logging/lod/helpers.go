package lod

import (
	"context"

	"prism/client/logging"
)

const (
	// EventGenerationSkipped is emitted when a mesh cannot host proxies at all.
	EventGenerationSkipped logging.EventType = "lod.generation_skipped"
	// EventGenerationFailed is emitted when proxy generation fails for one mesh.
	EventGenerationFailed logging.EventType = "lod.generation_failed"
)

var engineRef = logging.EntityRef{ID: "lod", Kind: logging.EntityKindController}

// GenerationPayload identifies the mesh and the failing level.
type GenerationPayload struct {
	MeshID string  `json:"meshId"`
	Level  int     `json:"level,omitempty"`
	Error  string  `json:"error,omitempty"`
	Detail float64 `json:"quality,omitempty"`
}

// GenerationSkipped publishes a warning for a mesh kept at full detail.
func GenerationSkipped(ctx context.Context, pub logging.Publisher, payload GenerationPayload) {
	publish(ctx, pub, EventGenerationSkipped, payload)
}

// GenerationFailed publishes a warning for a mesh whose proxies could not be built.
func GenerationFailed(ctx context.Context, pub logging.Publisher, payload GenerationPayload) {
	publish(ctx, pub, EventGenerationFailed, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, payload GenerationPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    engineRef,
		Targets:  []logging.EntityRef{{ID: payload.MeshID, Kind: logging.EntityKindMesh}},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLOD,
		Payload:  payload,
	})
}
