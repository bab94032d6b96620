package sim

import (
	"context"
	"time"

	"prism/client/internal/telemetry"
	"prism/client/logging"
	loggingSimulation "prism/client/logging/simulation"
)

const (
	// CommandRejectQueueFull indicates the command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectInvalid indicates a command without a usable payload.
	CommandRejectInvalid = "invalid"

	loopStepDurationMetricKey = "loop_step_duration_micros"
	loopOverrunMetricKey      = "loop_frame_budget_overrun_total"
)

// LoopConfig tunes the real-time driver.
type LoopConfig struct {
	FrameRate        int
	CatchupMaxFrames int
	CommandCapacity  int
	// OverrunRatio is the step-duration/budget ratio above which an overrun
	// event is published.
	OverrunRatio float64
}

// DefaultLoopConfig drives the scheduler at 60 frames per second.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		FrameRate:        60,
		CatchupMaxFrames: 5,
		CommandCapacity:  64,
		OverrunRatio:     1.5,
	}
}

func (cfg LoopConfig) normalized() LoopConfig {
	normalized := cfg
	if normalized.FrameRate <= 0 {
		normalized.FrameRate = 60
	}
	if normalized.CatchupMaxFrames < 1 {
		normalized.CatchupMaxFrames = 1
	}
	if normalized.CommandCapacity < 1 {
		normalized.CommandCapacity = 64
	}
	if normalized.OverrunRatio <= 0 {
		normalized.OverrunRatio = 1.5
	}
	return normalized
}

// LoopDeps carries the shared infrastructure used by the loop.
type LoopDeps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
}

// LoopHooks let the host observe each step.
type LoopHooks struct {
	// Apply receives the commands staged since the previous step, before
	// virtual time advances.
	Apply func(cmds []Command)
	// AfterStep runs once the scheduler has fired every due callback.
	AfterStep func(LoopStepResult)
}

// LoopStepResult summarises one step.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        time.Duration
	Duration     time.Duration
	Budget       time.Duration
	Fired        int
	Commands     []Command
	ClampedDelta bool
}

// Loop drives a Scheduler from wall-clock time on a single goroutine and is
// the hand-off point between host goroutines and the single-threaded core.
type Loop struct {
	sched   *Scheduler
	buffer  *CommandBuffer
	hooks   LoopHooks
	config  LoopConfig
	deps    LoopDeps
	tick    uint64
	streak  uint64
	maxStep time.Duration
}

// NewLoop wraps sched with a command buffer and a fixed-rate driver.
func NewLoop(sched *Scheduler, cfg LoopConfig, deps LoopDeps, hooks LoopHooks) *Loop {
	if sched == nil {
		return nil
	}
	cfg = cfg.normalized()
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	budget := time.Second / time.Duration(cfg.FrameRate)
	return &Loop{
		sched:   sched,
		buffer:  NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:   hooks,
		config:  cfg,
		deps:    deps,
		maxStep: budget * time.Duration(cfg.CatchupMaxFrames),
	}
}

// Budget reports the per-frame time budget.
func (l *Loop) Budget() time.Duration {
	if l == nil {
		return 0
	}
	return time.Second / time.Duration(l.config.FrameRate)
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Enqueue stages a command for the next step.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if !validCommand(cmd) {
		return false, CommandRejectInvalid
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.deps.Clock.Now()
	}
	if !l.buffer.Push(cmd) {
		if l.deps.Logger != nil {
			l.deps.Logger.Printf("[backpressure] dropping command type=%s source=%s", cmd.Type, cmd.Source)
		}
		return false, CommandRejectQueueFull
	}
	return true, ""
}

// Step applies staged commands and advances virtual time by delta, clamped
// to the catch-up window.
func (l *Loop) Step(delta time.Duration) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	clamped := false
	if delta <= 0 {
		delta = l.Budget()
	} else if delta > l.maxStep {
		loggingSimulation.CatchupClamped(context.Background(), l.deps.Publisher, l.tick+1, loggingSimulation.CatchupClampedPayload{
			ElapsedMillis: delta.Milliseconds(),
			AppliedMillis: l.maxStep.Milliseconds(),
		})
		delta = l.maxStep
		clamped = true
	}
	l.tick++

	start := l.deps.Clock.Now()
	commands := l.buffer.Drain()
	if len(commands) > 0 && l.hooks.Apply != nil {
		l.hooks.Apply(commands)
	}
	fired := l.sched.Advance(delta)
	result := LoopStepResult{
		Tick:         l.tick,
		Now:          l.sched.Now(),
		Delta:        delta,
		Duration:     l.deps.Clock.Now().Sub(start),
		Budget:       l.Budget(),
		Fired:        fired,
		Commands:     commands,
		ClampedDelta: clamped,
	}
	l.observeBudget(result)
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(result)
	}
	return result
}

// Run drives Step at the configured frame rate until stop closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(l.Budget())
	defer ticker.Stop()

	last := l.deps.Clock.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := l.deps.Clock.Now()
			delta := now.Sub(last)
			last = now
			l.Step(delta)
		}
	}
}

func (l *Loop) observeBudget(result LoopStepResult) {
	if l.deps.Metrics != nil {
		micros := result.Duration.Microseconds()
		if micros < 0 {
			micros = 0
		}
		l.deps.Metrics.Store(loopStepDurationMetricKey, uint64(micros))
	}
	if result.Budget <= 0 {
		return
	}
	ratio := float64(result.Duration) / float64(result.Budget)
	if ratio < l.config.OverrunRatio {
		l.streak = 0
		return
	}
	l.streak++
	if l.deps.Metrics != nil {
		l.deps.Metrics.Add(loopOverrunMetricKey, 1)
	}
	loggingSimulation.FrameBudgetOverrun(context.Background(), l.deps.Publisher, result.Tick, loggingSimulation.FrameBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         l.streak,
	}, nil)
}

func validCommand(cmd Command) bool {
	switch cmd.Type {
	case CommandSetQuality:
		return cmd.Quality != nil && cmd.Quality.Tier != ""
	case CommandToggleHUD:
		return cmd.HUD != nil
	case CommandMoveAnchor:
		return cmd.Anchor != nil
	default:
		return false
	}
}
