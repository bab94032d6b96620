package simulation

import (
	"context"

	"prism/client/logging"
)

const (
	// EventFrameBudgetOverrun is emitted when a loop step exceeds the allotted frame budget.
	EventFrameBudgetOverrun logging.EventType = "simulation.frame_budget_overrun"
	// EventCatchupClamped is emitted when the loop drops virtual time after a stall.
	EventCatchupClamped logging.EventType = "simulation.catchup_clamped"
)

// FrameBudgetOverrunPayload captures timing details for a budget breach.
type FrameBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// FrameBudgetOverrun publishes a warning when a loop step exceeds the configured budget.
func FrameBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload FrameBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFrameBudgetOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: "loop", Kind: logging.EntityKindLoop},
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CatchupClampedPayload records how much virtual time was discarded.
type CatchupClampedPayload struct {
	ElapsedMillis int64 `json:"elapsedMillis"`
	AppliedMillis int64 `json:"appliedMillis"`
}

// CatchupClamped publishes a debug event when elapsed time exceeds the catch-up window.
func CatchupClamped(ctx context.Context, pub logging.Publisher, tick uint64, payload CatchupClampedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCatchupClamped,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: "loop", Kind: logging.EntityKindLoop},
		Severity: logging.SeverityDebug,
		Category: "simulation",
		Payload:  payload,
	})
}
