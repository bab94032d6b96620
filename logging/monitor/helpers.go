package monitor

import (
	"context"

	"prism/client/logging"
)

// EventThresholdExceeded is emitted for every classified telemetry warning.
const EventThresholdExceeded logging.EventType = "telemetry.threshold_exceeded"

// ThresholdPayload captures the offending metric.
type ThresholdPayload struct {
	Metric    string  `json:"metric"`
	Level     string  `json:"level"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// ThresholdExceeded publishes a warn or error event depending on critical.
func ThresholdExceeded(ctx context.Context, pub logging.Publisher, tick uint64, critical bool, payload ThresholdPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityWarn
	if critical {
		severity = logging.SeverityError
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventThresholdExceeded,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: "telemetry", Kind: logging.EntityKindMonitor},
		Severity: severity,
		Category: logging.CategoryTelemetry,
		Payload:  payload,
	})
}
