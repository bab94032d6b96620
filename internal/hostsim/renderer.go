package hostsim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"prism/client/internal/quality"
	"prism/client/internal/sim"
)

// RendererConfig is the synthetic frame cost model. Costs are in
// microseconds per frame.
type RendererConfig struct {
	FrameInterval time.Duration
	MaxFPS        float64
	BaseCost      float64
	FillCost      float64
	VertexCost    float64
	DrawCallCost  float64
	// ReportDrawCalls false simulates a renderer without a draw-call counter.
	ReportDrawCalls bool
}

// DefaultRendererConfig renders at up to 60 fps.
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		FrameInterval:   16 * time.Millisecond,
		MaxFPS:          60,
		BaseCost:        2000,
		FillCost:        6000,
		VertexCost:      0.004,
		DrawCallCost:    6,
		ReportDrawCalls: true,
	}
}

// Renderer derives a frame rate from what the scene draws and implements
// quality.FrameClock, quality.Renderer and telemetry.DrawCallReporter.
type Renderer struct {
	cfg    RendererConfig
	timers sim.Timers
	scene  *Scene

	hardwareScale float64
	load          float64
	fps           float64
	drawCalls     int
	frames        uint64

	listeners map[uint64]func(time.Time)
	nextID    uint64
	cancel    sim.CancelFunc
}

// NewRenderer constructs a renderer that is not yet drawing.
func NewRenderer(cfg RendererConfig, timers sim.Timers, scene *Scene) *Renderer {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultRendererConfig().FrameInterval
	}
	if cfg.MaxFPS <= 0 {
		cfg.MaxFPS = DefaultRendererConfig().MaxFPS
	}
	return &Renderer{
		cfg:           cfg,
		timers:        timers,
		scene:         scene,
		hardwareScale: 1,
		load:          1,
		listeners:     make(map[uint64]func(time.Time)),
	}
}

// Start begins rendering frames.
func (r *Renderer) Start() {
	if r.cancel != nil || r.timers == nil {
		return
	}
	r.cancel = r.timers.Every(r.cfg.FrameInterval, r.frame)
}

// Stop halts rendering.
func (r *Renderer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
}

// OnFrame implements quality.FrameClock.
func (r *Renderer) OnFrame(fn func(now time.Time)) func() {
	if fn == nil {
		return func() {}
	}
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	return func() { delete(r.listeners, id) }
}

// FPS implements quality.FrameClock.
func (r *Renderer) FPS() float64 {
	return r.fps
}

// DrawCalls implements telemetry.DrawCallReporter.
func (r *Renderer) DrawCalls() (int, bool) {
	if !r.cfg.ReportDrawCalls {
		return 0, false
	}
	return r.drawCalls, true
}

// ApplyConfig implements quality.Renderer.
func (r *Renderer) ApplyConfig(bundle quality.Bundle) error {
	scale := bundle.Settings.HardwareScale
	if scale <= 0 || math.IsNaN(scale) {
		return fmt.Errorf("hardware scale %.2f must be positive", scale)
	}
	r.hardwareScale = scale
	return nil
}

// HardwareScale reports the applied render scale.
func (r *Renderer) HardwareScale() float64 {
	return r.hardwareScale
}

// SetLoad multiplies every frame's cost, standing in for work outside the
// scene such as other processes on the machine.
func (r *Renderer) SetLoad(load float64) error {
	if load <= 0 {
		return errors.New("load must be positive")
	}
	r.load = load
	return nil
}

// Frames reports how many frames have been drawn.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// Render draws one frame and returns its frame rate.
func (r *Renderer) Render() float64 {
	meshes, vertices := r.scene.VisibleLoad()
	r.drawCalls = meshes
	cost := r.cfg.BaseCost +
		r.cfg.FillCost/(r.hardwareScale*r.hardwareScale) +
		float64(vertices)*r.cfg.VertexCost +
		float64(meshes)*r.cfg.DrawCallCost
	cost *= r.load
	fps := r.cfg.MaxFPS
	if cost > 0 {
		fps = math.Min(r.cfg.MaxFPS, 1e6/cost)
	}
	r.fps = fps
	r.frames++
	return fps
}

func (r *Renderer) frame(now time.Time) {
	r.Render()
	for id := uint64(1); id <= r.nextID; id++ {
		if fn, ok := r.listeners[id]; ok {
			fn(now)
		}
	}
}
