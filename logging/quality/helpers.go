package quality

import (
	"context"

	"prism/client/logging"
)

const (
	// EventTierChanged is emitted once per applied tier transition.
	EventTierChanged logging.EventType = "quality.tier_changed"
	// EventPropagationFailed is emitted when a collaborator rejects a settings bundle.
	EventPropagationFailed logging.EventType = "quality.propagation_failed"
	// EventEscalation is emitted when a critical telemetry warning forces a downgrade.
	EventEscalation logging.EventType = "quality.escalation"
)

var controllerRef = logging.EntityRef{ID: "quality", Kind: logging.EntityKindController}

// TierChangedPayload describes one transition.
type TierChangedPayload struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Reason     string  `json:"reason"`
	Version    uint64  `json:"version"`
	AverageFPS float64 `json:"averageFps,omitempty"`
	Failures   int     `json:"failures,omitempty"`
}

// TierChanged publishes the transition under the given trace id.
func TierChanged(ctx context.Context, pub logging.Publisher, traceID string, payload TierChangedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTierChanged,
		Actor:    controllerRef,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryQuality,
		Payload:  payload,
		TraceID:  traceID,
		Tier:     payload.To,
		Version:  payload.Version,
	})
}

// PropagationFailedPayload names the collaborator and the failure.
type PropagationFailedPayload struct {
	Collaborator string `json:"collaborator"`
	Tier         string `json:"tier"`
	Version      uint64 `json:"version"`
	Error        string `json:"error"`
}

// PropagationFailed publishes a warning for a failed collaborator write.
func PropagationFailed(ctx context.Context, pub logging.Publisher, traceID string, payload PropagationFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPropagationFailed,
		Actor:    controllerRef,
		Targets:  []logging.EntityRef{{ID: payload.Collaborator, Kind: logging.EntityKindCollaborator}},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryQuality,
		Payload:  payload,
		TraceID:  traceID,
		Tier:     payload.Tier,
		Version:  payload.Version,
	})
}

// EscalationPayload carries the warning that triggered the downgrade.
type EscalationPayload struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Escalation publishes a warning when the controller downgrades outside its schedule.
func Escalation(ctx context.Context, pub logging.Publisher, payload EscalationPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEscalation,
		Actor:    controllerRef,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryQuality,
		Payload:  payload,
	})
}
