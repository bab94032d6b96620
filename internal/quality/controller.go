package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"prism/client/internal/lod"
	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
	"prism/client/logging"
	loggingQuality "prism/client/logging/quality"
)

const (
	tierMetricKey                = "quality_tier"
	bundleVersionMetricKey       = "quality_bundle_version"
	fpsMilliMetricKey            = "quality_fps_milli"
	transitionsMetricKey         = "quality_transitions_total"
	escalationsMetricKey         = "quality_escalations_total"
	propagationFailuresMetricKey = "quality_propagation_failures_total"
)

// Transition reasons recorded in events and stats.
const (
	ReasonStart      = "start"
	ReasonFastPath   = "fast_path"
	ReasonDowngrade  = "evaluation_downgrade"
	ReasonUpgrade    = "evaluation_upgrade"
	ReasonEscalation = "escalation"
	ReasonManual     = "manual"
)

// ErrAlreadyRunning is returned by Start when the controller was not stopped.
var ErrAlreadyRunning = errors.New("quality: controller already running")

// Decision is the outcome of one evaluation tick.
type Decision string

const (
	DecisionSkipped   Decision = "skipped"
	DecisionHold      Decision = "hold"
	DecisionDowngrade Decision = "downgrade"
	DecisionUpgrade   Decision = "upgrade"
)

// Config tunes the controller.
type Config struct {
	TargetFPS          float64
	AutoAdjust         bool
	ShowPerformanceHUD bool
	InitialTier        Tier
	Settings           SettingsTable

	SampleInterval     time.Duration
	EvaluationInterval time.Duration
	Cooldown           time.Duration

	WindowSize           int
	MinEvaluationSamples int
	FastPathSamples      int
	FastPathRatio        float64
	DowngradeRatio       float64
	UpgradeRatio         float64

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// DefaultConfig returns the reference controller configuration.
func DefaultConfig() Config {
	return Config{
		TargetFPS:            60,
		AutoAdjust:           true,
		InitialTier:          TierHigh,
		Settings:             DefaultSettingsTable(),
		SampleInterval:       time.Second,
		EvaluationInterval:   10 * time.Second,
		Cooldown:             5 * time.Second,
		WindowSize:           10,
		MinEvaluationSamples: 5,
		FastPathSamples:      3,
		FastPathRatio:        0.7,
		DowngradeRatio:       0.8,
		UpgradeRatio:         1.2,
	}
}

func (cfg Config) normalized() Config {
	defaults := DefaultConfig()
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = defaults.TargetFPS
	}
	if !cfg.InitialTier.Valid() {
		cfg.InitialTier = defaults.InitialTier
	}
	if cfg.Settings == nil {
		cfg.Settings = defaults.Settings
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaults.SampleInterval
	}
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = defaults.EvaluationInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.WindowSize < 1 {
		cfg.WindowSize = defaults.WindowSize
	}
	if cfg.MinEvaluationSamples < 1 {
		cfg.MinEvaluationSamples = defaults.MinEvaluationSamples
	}
	if cfg.FastPathSamples < 1 {
		cfg.FastPathSamples = defaults.FastPathSamples
	}
	if cfg.FastPathRatio <= 0 {
		cfg.FastPathRatio = defaults.FastPathRatio
	}
	if cfg.DowngradeRatio <= 0 {
		cfg.DowngradeRatio = defaults.DowngradeRatio
	}
	if cfg.UpgradeRatio <= 0 {
		cfg.UpgradeRatio = defaults.UpgradeRatio
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return cfg
}

// Stats is the controller snapshot served to the HUD and diagnostics.
type Stats struct {
	Running        bool                    `json:"running"`
	Tier           Tier                    `json:"tier"`
	TargetFPS      float64                 `json:"targetFps"`
	FPS            float64                 `json:"fps"`
	AverageFPS     float64                 `json:"averageFps"`
	Window         []float64               `json:"window"`
	Adjusting      bool                    `json:"adjusting"`
	AutoAdjust     bool                    `json:"autoAdjust"`
	HUDVisible     bool                    `json:"hudVisible"`
	Version        uint64                  `json:"version"`
	Transitions    uint64                  `json:"transitions"`
	Escalations    uint64                  `json:"escalations"`
	LastReason     string                  `json:"lastReason,omitempty"`
	LastTransition time.Time               `json:"lastTransition"`
	Anchor         r3.Vector               `json:"anchor"`
	LOD            *lod.Stats              `json:"lod,omitempty"`
	Telemetry      *telemetry.MemorySample `json:"telemetry,omitempty"`
	Streaming      *StreamingStats         `json:"streaming,omitempty"`
	Physics        *PhysicsStats           `json:"physics,omitempty"`
	Textures       *TextureStats           `json:"textures,omitempty"`
}

// Controller turns frame-rate and memory signals into tier transitions and
// pushes each tier's settings into its collaborators. All methods must be
// called from the scheduler's thread.
type Controller struct {
	cfg    Config
	timers sim.Timers
	collab Collaborators

	tier       Tier
	version    uint64
	window     *FPSWindow
	adjusting  bool
	running    bool
	hudVisible bool
	anchor     r3.Vector
	lastSample time.Time
	lastFPS    float64

	transitions    uint64
	escalations    uint64
	lastReason     string
	lastTransition time.Time

	cancelFrame    func()
	cancelWarnings func()
	cancelEval     sim.CancelFunc
	cancelCooldown sim.CancelFunc
}

// New constructs a stopped controller at cfg.InitialTier.
func New(cfg Config, timers sim.Timers, collab Collaborators) (*Controller, error) {
	if timers == nil {
		return nil, errors.New("quality: timers are required")
	}
	cfg = cfg.normalized()
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}
	cfg.Settings = cfg.Settings.Clone()
	return &Controller{
		cfg:        cfg,
		timers:     timers,
		collab:     collab,
		tier:       cfg.InitialTier,
		window:     NewFPSWindow(cfg.WindowSize),
		hudVisible: cfg.ShowPerformanceHUD,
	}, nil
}

// Start begins frame sampling and periodic evaluation, starts the
// subsystems and pushes the current tier's settings to every collaborator.
func (c *Controller) Start(anchor r3.Vector) error {
	if c.running {
		return ErrAlreadyRunning
	}
	c.running = true
	c.anchor = anchor
	c.lastSample = c.timers.Now()

	if c.collab.Frames != nil {
		c.cancelFrame = c.collab.Frames.OnFrame(c.onFrame)
	}
	if c.collab.LOD != nil {
		c.collab.LOD.Start()
	}
	if c.collab.Telemetry != nil {
		c.collab.Telemetry.Start()
		c.cancelWarnings = c.collab.Telemetry.OnWarning(c.onWarning)
	}
	c.cancelEval = c.timers.Every(c.cfg.EvaluationInterval, func(time.Time) {
		c.Evaluate()
	})
	c.resumeCooldown()

	// The bundle goes out before streaming and physics run their first pass.
	traceID := uuid.NewString()
	failures := c.apply(traceID)
	if c.collab.Streaming != nil {
		c.collab.Streaming.Start(anchor)
	}
	if c.collab.Physics != nil {
		c.collab.Physics.Start(anchor)
	}
	if c.collab.HUD != nil {
		c.collab.HUD.SetVisible(c.hudVisible)
	}
	c.lastReason = ReasonStart
	loggingQuality.TierChanged(context.Background(), c.cfg.Publisher, traceID, loggingQuality.TierChangedPayload{
		From:     c.tier.String(),
		To:       c.tier.String(),
		Reason:   ReasonStart,
		Version:  c.version,
		Failures: failures,
	})
	c.logf("[quality] started at %s (target %.0f fps, auto adjust %t)", c.tier, c.cfg.TargetFPS, c.cfg.AutoAdjust)
	return nil
}

// Stop cancels every trigger and stops the collaborators. It is safe to call
// more than once. Collaborator work already in flight may still complete.
func (c *Controller) Stop() {
	if !c.running {
		return
	}
	c.running = false
	for _, cancel := range []func(){c.cancelFrame, c.cancelWarnings, c.cancelEval, c.cancelCooldown} {
		if cancel != nil {
			cancel()
		}
	}
	c.cancelFrame, c.cancelWarnings, c.cancelEval, c.cancelCooldown = nil, nil, nil, nil
	c.adjusting = false

	if c.collab.LOD != nil {
		c.collab.LOD.Stop()
	}
	if c.collab.Telemetry != nil {
		c.collab.Telemetry.Stop()
	}
	if c.collab.Streaming != nil {
		c.collab.Streaming.Stop()
	}
	if c.collab.Physics != nil {
		c.collab.Physics.Stop()
	}
	c.logf("[quality] stopped at %s", c.tier)
}

// Running reports whether Start has been called without a matching Stop.
func (c *Controller) Running() bool {
	return c.running
}

// UpdatePlayerPosition forwards the anchor to streaming and physics.
func (c *Controller) UpdatePlayerPosition(position r3.Vector) {
	c.anchor = position
	if c.collab.Streaming != nil {
		c.collab.Streaming.UpdatePlayerPosition(position)
	}
	if c.collab.Physics != nil {
		c.collab.Physics.UpdatePlayerPosition(position)
	}
}

// QualityLevel returns the current tier.
func (c *Controller) QualityLevel() Tier {
	return c.tier
}

// SetQualityLevel moves directly to tier through the regular propagation
// path. Requesting the current tier is a no-op.
func (c *Controller) SetQualityLevel(tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTier, int(tier))
	}
	c.transition(tier, ReasonManual, c.window.Average())
	return nil
}

// SetAutoAdjust enables or disables automatic transitions.
func (c *Controller) SetAutoAdjust(enabled bool) {
	c.cfg.AutoAdjust = enabled
}

// TogglePerformanceHUD shows or hides the performance overlay.
func (c *Controller) TogglePerformanceHUD(visible bool) {
	c.hudVisible = visible
	if c.collab.HUD != nil {
		c.collab.HUD.SetVisible(visible)
	}
}

// OptimizationSuggestions relays the telemetry monitor's hints.
func (c *Controller) OptimizationSuggestions() []string {
	if c.collab.Telemetry == nil {
		return nil
	}
	return c.collab.Telemetry.OptimizationSuggestions()
}

// Stats returns a snapshot of the controller and its subsystems.
func (c *Controller) Stats() Stats {
	stats := Stats{
		Running:        c.running,
		Tier:           c.tier,
		TargetFPS:      c.cfg.TargetFPS,
		FPS:            c.lastFPS,
		AverageFPS:     c.window.Average(),
		Window:         c.window.Samples(),
		Adjusting:      c.adjusting,
		AutoAdjust:     c.cfg.AutoAdjust,
		HUDVisible:     c.hudVisible,
		Version:        c.version,
		Transitions:    c.transitions,
		Escalations:    c.escalations,
		LastReason:     c.lastReason,
		LastTransition: c.lastTransition,
		Anchor:         c.anchor,
	}
	if c.collab.Frames != nil {
		stats.FPS = c.collab.Frames.FPS()
	}
	if c.collab.LOD != nil {
		lodStats := c.collab.LOD.Stats()
		stats.LOD = &lodStats
	}
	if c.collab.Telemetry != nil {
		if sample, ok := c.collab.Telemetry.Latest(); ok {
			stats.Telemetry = &sample
		}
	}
	if c.collab.Streaming != nil {
		streaming := c.collab.Streaming.Stats()
		stats.Streaming = &streaming
	}
	if c.collab.Physics != nil {
		physics := c.collab.Physics.Stats()
		stats.Physics = &physics
	}
	if c.collab.Textures != nil {
		textures := c.collab.Textures.Stats()
		stats.Textures = &textures
	}
	return stats
}

// SampleFrame records one frame-rate sample and runs the fast-path check:
// when the newest samples average below FastPathRatio of the target, the
// tier drops one step without waiting for the evaluation tick.
func (c *Controller) SampleFrame(fps float64) {
	c.window.Push(fps)
	c.lastFPS = fps
	c.storeMetric(fpsMilliMetricKey, uint64(math.Max(0, math.Round(fps*1000))))
	if !c.cfg.AutoAdjust || c.adjusting {
		return
	}
	recent, ok := c.window.Recent(c.cfg.FastPathSamples)
	if ok && recent < c.cfg.FastPathRatio*c.cfg.TargetFPS {
		c.transition(c.tier.Step(-1), ReasonFastPath, recent)
	}
}

// Evaluate runs one evaluation tick.
func (c *Controller) Evaluate() Decision {
	if !c.cfg.AutoAdjust || c.adjusting || c.window.Len() < c.cfg.MinEvaluationSamples {
		return DecisionSkipped
	}
	average := c.window.Average()
	highMemory := c.highMemoryUsage()
	switch {
	case average < c.cfg.DowngradeRatio*c.cfg.TargetFPS || highMemory:
		if !c.transition(c.tier.Step(-1), ReasonDowngrade, average) {
			return DecisionHold
		}
		return DecisionDowngrade
	case average > c.cfg.UpgradeRatio*c.cfg.TargetFPS && c.tier != TierUltra:
		if !c.transition(c.tier.Step(1), ReasonUpgrade, average) {
			return DecisionHold
		}
		return DecisionUpgrade
	default:
		return DecisionHold
	}
}

func (c *Controller) highMemoryUsage() bool {
	if c.collab.Telemetry == nil {
		return false
	}
	sample, ok := c.collab.Telemetry.Latest()
	if !ok {
		return false
	}
	warning := c.collab.Telemetry.Thresholds().HeapUsagePercent.Warning
	return warning > 0 && sample.HeapUsagePercent >= warning
}

func (c *Controller) onFrame(now time.Time) {
	if now.Sub(c.lastSample) < c.cfg.SampleInterval {
		return
	}
	c.lastSample = now
	c.SampleFrame(c.collab.Frames.FPS())
}

func (c *Controller) onWarning(w telemetry.Warning) {
	if !w.Critical() || !c.cfg.AutoAdjust || c.adjusting {
		return
	}
	c.escalations++
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Add(escalationsMetricKey, 1)
	}
	loggingQuality.Escalation(context.Background(), c.cfg.Publisher, loggingQuality.EscalationPayload{
		Metric:    string(w.Metric),
		Value:     w.Value,
		Threshold: w.Threshold,
		Message:   w.Message,
	})
	c.transition(c.tier.Step(-1), ReasonEscalation, c.window.Average())
}

// transition applies target and starts the cool-down. Requests for the
// current tier, including steps past either end, change nothing.
func (c *Controller) transition(target Tier, reason string, averageFPS float64) bool {
	if target == c.tier || !target.Valid() {
		return false
	}
	c.adjusting = true
	from := c.tier
	c.tier = target

	traceID := uuid.NewString()
	failures := c.apply(traceID)
	c.window.Reset()
	c.transitions++
	c.lastReason = reason
	c.lastTransition = c.timers.Now()
	c.startCooldown()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Add(transitionsMetricKey, 1)
	}
	loggingQuality.TierChanged(context.Background(), c.cfg.Publisher, traceID, loggingQuality.TierChangedPayload{
		From:       from.String(),
		To:         target.String(),
		Reason:     reason,
		Version:    c.version,
		AverageFPS: averageFPS,
		Failures:   failures,
	})
	c.logf("[quality] %s -> %s (%s, avg %.1f fps, %d propagation failures)", from, target, reason, averageFPS, failures)
	return true
}

func (c *Controller) startCooldown() {
	c.holdFor(c.cfg.Cooldown)
}

// resumeCooldown re-arms whatever is left of the cool-down of the last
// transition. A restart does not open a window for a second transition.
func (c *Controller) resumeCooldown() {
	if c.lastTransition.IsZero() {
		return
	}
	if remaining := c.cfg.Cooldown - c.timers.Now().Sub(c.lastTransition); remaining > 0 {
		c.adjusting = true
		c.holdFor(remaining)
	}
}

func (c *Controller) holdFor(d time.Duration) {
	if c.cancelCooldown != nil {
		c.cancelCooldown()
	}
	c.cancelCooldown = c.timers.After(d, func(time.Time) {
		c.adjusting = false
		c.cancelCooldown = nil
	})
}

// apply pushes a new bundle for the current tier. Each write is best effort:
// a failing collaborator is reported and the rest still receive the bundle.
func (c *Controller) apply(traceID string) int {
	c.version++
	bundle := Bundle{
		Version:  c.version,
		Tier:     c.tier,
		Settings: c.cfg.Settings[c.tier].Clone(),
	}
	failures := 0
	report := func(collaborator string, err error) {
		if err == nil {
			return
		}
		failures++
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Add(propagationFailuresMetricKey, 1)
		}
		loggingQuality.PropagationFailed(context.Background(), c.cfg.Publisher, traceID, loggingQuality.PropagationFailedPayload{
			Collaborator: collaborator,
			Tier:         bundle.Tier.String(),
			Version:      bundle.Version,
			Error:        err.Error(),
		})
		c.logf("[quality] %s rejected %s settings v%d: %v", collaborator, bundle.Tier, bundle.Version, err)
	}

	if c.collab.LOD != nil {
		report("lod", c.collab.LOD.SetDefaultLevels(bundle.Settings.LOD))
	}
	if c.collab.Streaming != nil {
		report("streaming", c.collab.Streaming.ApplyConfig(bundle))
	}
	if c.collab.Physics != nil {
		report("physics", c.collab.Physics.ApplyConfig(bundle))
	}
	if c.collab.Textures != nil {
		report("textures", c.collab.Textures.ApplyConfig(bundle))
	}
	if c.collab.Renderer != nil {
		report("renderer", c.collab.Renderer.ApplyConfig(bundle))
	}
	if c.collab.LOD != nil {
		regen := c.collab.LOD.Regenerate()
		if regen.Failed > 0 {
			c.logf("[quality] lod regeneration left %d meshes at full detail", regen.Failed)
		}
	}
	if c.collab.Textures != nil {
		report("textures", c.collab.Textures.ProcessSceneTextures())
	}

	c.storeMetric(tierMetricKey, uint64(c.tier))
	c.storeMetric(bundleVersionMetricKey, c.version)
	return failures
}

func (c *Controller) storeMetric(key string, value uint64) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Store(key, value)
	}
}

func (c *Controller) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, args...)
	}
}
