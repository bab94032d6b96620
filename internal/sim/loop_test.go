package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"prism/client/logging"
	loggingSimulation "prism/client/logging/simulation"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *eventRecorder) Publish(_ context.Context, event logging.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType logging.EventType) []logging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logging.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestLoopStepAppliesCommandsBeforeAdvancing(t *testing.T) {
	sched := NewScheduler(epoch)
	var log []string
	sched.Every(10*time.Millisecond, func(time.Time) { log = append(log, "tick") })

	loop := NewLoop(sched, LoopConfig{FrameRate: 100}, LoopDeps{}, LoopHooks{
		Apply: func(cmds []Command) {
			for _, cmd := range cmds {
				log = append(log, string(cmd.Type))
			}
		},
	})

	if ok, reason := loop.Enqueue(Command{Type: CommandToggleHUD, HUD: &HUDCommand{Visible: true}}); !ok {
		t.Fatalf("expected enqueue to succeed, got %s", reason)
	}
	result := loop.Step(10 * time.Millisecond)

	if len(log) != 2 || log[0] != string(CommandToggleHUD) || log[1] != "tick" {
		t.Fatalf("unexpected order: %v", log)
	}
	if result.Tick != 1 || result.Fired != 1 || len(result.Commands) != 1 {
		t.Fatalf("unexpected step result: %+v", result)
	}
	if loop.Pending() != 0 {
		t.Fatalf("expected the buffer to be drained")
	}
}

func TestLoopRejectsInvalidCommands(t *testing.T) {
	loop := NewLoop(NewScheduler(epoch), DefaultLoopConfig(), LoopDeps{}, LoopHooks{})
	if ok, reason := loop.Enqueue(Command{Type: CommandSetQuality}); ok || reason != CommandRejectInvalid {
		t.Fatalf("expected invalid rejection, got ok=%v reason=%s", ok, reason)
	}
	if ok, _ := loop.Enqueue(Command{Type: CommandSetQuality, Quality: &QualityCommand{Tier: "low"}}); !ok {
		t.Fatalf("expected quality command to be accepted")
	}
}

func TestLoopRejectsWhenFull(t *testing.T) {
	loop := NewLoop(NewScheduler(epoch), LoopConfig{CommandCapacity: 1}, LoopDeps{}, LoopHooks{})
	if ok, _ := loop.Enqueue(Command{Type: CommandMoveAnchor, Anchor: &AnchorCommand{}}); !ok {
		t.Fatalf("expected first enqueue to succeed")
	}
	if ok, reason := loop.Enqueue(Command{Type: CommandToggleHUD, HUD: &HUDCommand{}}); ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue full, got ok=%v reason=%s", ok, reason)
	}
}

func TestLoopClampsCatchup(t *testing.T) {
	sched := NewScheduler(epoch)
	recorder := &eventRecorder{}
	loop := NewLoop(sched, LoopConfig{FrameRate: 10, CatchupMaxFrames: 2}, LoopDeps{Publisher: recorder}, LoopHooks{})

	result := loop.Step(5 * time.Second)
	if !result.ClampedDelta || result.Delta != 200*time.Millisecond {
		t.Fatalf("expected delta clamped to 200ms, got %+v", result)
	}
	if !sched.Now().Equal(epoch.Add(200 * time.Millisecond)) {
		t.Fatalf("expected virtual time to advance by the clamped delta")
	}
	if len(recorder.ofType(loggingSimulation.EventCatchupClamped)) != 1 {
		t.Fatalf("expected one catch-up event")
	}
}

func TestLoopPublishesBudgetOverrun(t *testing.T) {
	sched := NewScheduler(epoch)
	recorder := &eventRecorder{}
	clock := &stepClock{now: epoch, step: 50 * time.Millisecond}
	loop := NewLoop(sched, LoopConfig{FrameRate: 60}, LoopDeps{Publisher: recorder, Clock: clock}, LoopHooks{})

	loop.Step(0)
	loop.Step(0)

	events := recorder.ofType(loggingSimulation.EventFrameBudgetOverrun)
	if len(events) != 2 {
		t.Fatalf("expected 2 overrun events, got %d", len(events))
	}
	payload, ok := events[1].Payload.(loggingSimulation.FrameBudgetOverrunPayload)
	if !ok || payload.Streak != 2 {
		t.Fatalf("expected streak of 2, got %+v", events[1].Payload)
	}
}
