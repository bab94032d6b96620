package lod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
	"prism/client/logging"
	loggingLOD "prism/client/logging/lod"
)

const (
	meshesMetricKey             = "lod_meshes"
	proxiesMetricKey            = "lod_proxies"
	fullDetailMetricKey         = "lod_full_detail_meshes"
	levelSwitchesMetricKey      = "lod_level_switches_total"
	generationFailuresMetricKey = "lod_generation_failures_total"
)

// ErrUnknownMesh is returned for ids that were never registered.
var ErrUnknownMesh = errors.New("lod: unknown mesh")

// CameraSource reports where distances are measured from.
type CameraSource interface {
	CameraPosition() r3.Vector
}

// CameraFunc adapts a function into a CameraSource.
type CameraFunc func() r3.Vector

// CameraPosition implements CameraSource.
func (f CameraFunc) CameraPosition() r3.Vector {
	if f == nil {
		return r3.Vector{}
	}
	return f()
}

// Config tunes the engine.
type Config struct {
	UpdateFrequency time.Duration
	DefaultLevels   []Level
	Logger          telemetry.Logger
	Metrics         telemetry.Metrics
	Publisher       logging.Publisher
}

// DefaultConfig updates once per second with a single full-detail level.
func DefaultConfig() Config {
	return Config{
		UpdateFrequency: time.Second,
		DefaultLevels:   []Level{{Distance: 0, Quality: 1}},
	}
}

// RegisterOption customises RegisterMesh.
type RegisterOption func(*registration)

type registration struct {
	levels   []Level
	generate bool
}

// WithLevels registers the mesh with its own levels instead of the engine
// defaults. Explicit levels survive Regenerate.
func WithLevels(levels []Level) RegisterOption {
	return func(r *registration) {
		r.levels = append([]Level(nil), levels...)
	}
}

// WithoutGeneration defers proxy creation to a later GenerateLODs or
// Regenerate call.
func WithoutGeneration() RegisterOption {
	return func(r *registration) {
		r.generate = false
	}
}

type managedLevel struct {
	Level
	proxy Proxy
}

type managedMesh struct {
	object    Object
	levels    []managedLevel
	explicit  bool
	supported bool
	generated bool
	active    int
}

func (m *managedMesh) specs() []Level {
	specs := make([]Level, len(m.levels))
	for i, level := range m.levels {
		specs[i] = level.Level
	}
	return specs
}

func (m *managedMesh) disposeProxies() {
	for i := range m.levels {
		if m.levels[i].proxy != nil {
			m.levels[i].proxy.Dispose()
			m.levels[i].proxy = nil
		}
	}
	m.generated = false
}

// show makes exactly one representation visible. Without proxies the base
// object stays visible at every distance.
func (m *managedMesh) show(index int) {
	if !m.generated {
		index = 0
	}
	m.object.SetVisible(index == 0)
	for i := 1; i < len(m.levels); i++ {
		if m.levels[i].proxy != nil {
			m.levels[i].proxy.SetVisible(i == index)
		}
	}
	m.active = index
}

// RegenerateReport summarises one Regenerate pass.
type RegenerateReport struct {
	Regenerated int     `json:"regenerated"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	Errors      []error `json:"-"`
}

// Err joins the per-mesh failures.
func (r RegenerateReport) Err() error {
	return errors.Join(r.Errors...)
}

// Stats describes the managed set.
type Stats struct {
	Meshes     int         `json:"meshes"`
	Proxies    int         `json:"proxies"`
	FullDetail int         `json:"fullDetail"`
	PerLevel   map[int]int `json:"perLevel"`
	Updates    uint64      `json:"updates"`
}

// Engine selects one detail level per managed mesh from its distance to the
// camera. It is not safe for concurrent use; every call happens on the
// scheduler's thread.
type Engine struct {
	cfg        Config
	timers     sim.Timers
	camera     CameraSource
	simplifier Simplifier

	defaults []Level
	meshes   map[string]*managedMesh
	order    []string
	cancel   sim.CancelFunc
	updates  uint64
}

// NewEngine constructs a stopped engine. A nil simplifier selects
// ScaleSimplifier.
func NewEngine(cfg Config, timers sim.Timers, camera CameraSource, simplifier Simplifier) *Engine {
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = time.Second
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if simplifier == nil {
		simplifier = ScaleSimplifier{}
	}
	defaults := NormalizeLevels(cfg.DefaultLevels)
	if ValidateLevels(defaults) != nil {
		defaults = NormalizeLevels(DefaultConfig().DefaultLevels)
	}
	return &Engine{
		cfg:        cfg,
		timers:     timers,
		camera:     camera,
		simplifier: simplifier,
		defaults:   defaults,
		meshes:     make(map[string]*managedMesh),
	}
}

// Start schedules the periodic level update.
func (e *Engine) Start() {
	if e == nil || e.cancel != nil || e.timers == nil {
		return
	}
	e.cancel = e.timers.Every(e.cfg.UpdateFrequency, func(time.Time) {
		e.Update()
	})
}

// Stop cancels the periodic update. Managed meshes are kept.
func (e *Engine) Stop() {
	if e == nil || e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
}

// Running reports whether the periodic update is scheduled.
func (e *Engine) Running() bool {
	return e != nil && e.cancel != nil
}

// SetDefaultLevels replaces the levels applied to meshes registered without
// their own. Existing meshes pick them up on the next Regenerate.
func (e *Engine) SetDefaultLevels(levels []Level) error {
	if e == nil {
		return nil
	}
	normalized := NormalizeLevels(levels)
	if err := ValidateLevels(normalized); err != nil {
		return fmt.Errorf("lod: default levels: %w", err)
	}
	e.defaults = normalized
	return nil
}

// DefaultLevels returns a copy of the current default levels.
func (e *Engine) DefaultLevels() []Level {
	if e == nil {
		return nil
	}
	return append([]Level(nil), e.defaults...)
}

// RegisterMesh starts managing obj. Registering an id again replaces the
// previous entry and disposes its proxies. Generation problems are logged and
// leave the mesh at full detail; only invalid input is returned as an error.
func (e *Engine) RegisterMesh(obj Object, opts ...RegisterOption) error {
	if e == nil {
		return nil
	}
	if obj == nil || obj.ID() == "" {
		return errors.New("lod: mesh requires a non-empty id")
	}
	reg := registration{generate: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	levels := e.defaults
	explicit := reg.levels != nil
	if explicit {
		levels = NormalizeLevels(reg.levels)
		if err := ValidateLevels(levels); err != nil {
			return fmt.Errorf("lod: mesh %s: %w", obj.ID(), err)
		}
	}

	id := obj.ID()
	if existing, ok := e.meshes[id]; ok {
		existing.disposeProxies()
	} else {
		e.order = append(e.order, id)
	}
	mesh := &managedMesh{
		object:    obj,
		explicit:  explicit,
		supported: e.simplifier.Supports(obj),
	}
	mesh.levels = toManaged(levels)
	e.meshes[id] = mesh
	mesh.show(0)

	if !mesh.supported {
		e.logf("[lod] mesh %s does not support proxy generation; keeping full detail", id)
		loggingLOD.GenerationSkipped(context.Background(), e.cfg.Publisher, loggingLOD.GenerationPayload{MeshID: id})
	} else if reg.generate {
		if err := e.generate(mesh, mesh.specs()); err != nil {
			e.reportFailure(id, err)
		}
	}
	e.recordGauges()
	return nil
}

// GenerateLODs rebuilds the proxies of a registered mesh. levels replaces the
// mesh's levels and pins them against Regenerate; nil keeps the current ones.
func (e *Engine) GenerateLODs(id string, levels []Level) error {
	if e == nil {
		return nil
	}
	mesh, ok := e.meshes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMesh, id)
	}
	specs := mesh.specs()
	if levels != nil {
		specs = NormalizeLevels(levels)
		if err := ValidateLevels(specs); err != nil {
			return fmt.Errorf("lod: mesh %s: %w", id, err)
		}
		mesh.explicit = true
	}
	if !mesh.supported {
		mesh.levels = toManaged(specs)
		return fmt.Errorf("%w: %s", ErrUnsupported, id)
	}
	err := e.generate(mesh, specs)
	if err != nil {
		e.reportFailure(id, err)
	}
	e.recordGauges()
	return err
}

// Regenerate rebuilds proxies for every supported mesh in registration order.
// Meshes without explicit levels adopt the current defaults. A failing mesh is
// left at full detail and the pass continues.
func (e *Engine) Regenerate() RegenerateReport {
	var report RegenerateReport
	if e == nil {
		return report
	}
	for _, id := range e.order {
		mesh := e.meshes[id]
		specs := mesh.specs()
		if !mesh.explicit {
			specs = e.defaults
		}
		if !mesh.supported {
			mesh.levels = toManaged(specs)
			report.Skipped++
			continue
		}
		if err := e.generate(mesh, specs); err != nil {
			e.reportFailure(id, err)
			report.Failed++
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Regenerated++
	}
	e.recordGauges()
	return report
}

// Update measures every mesh's distance to the camera and activates the
// matching level.
func (e *Engine) Update() {
	if e == nil {
		return
	}
	e.updates++
	for _, id := range e.order {
		mesh := e.meshes[id]
		index := e.levelFor(mesh)
		if index == mesh.active {
			continue
		}
		mesh.show(index)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.Add(levelSwitchesMetricKey, 1)
		}
	}
}

// ActiveLevel reports the index of the visible level of a mesh.
func (e *Engine) ActiveLevel(id string) (int, bool) {
	if e == nil {
		return 0, false
	}
	mesh, ok := e.meshes[id]
	if !ok {
		return 0, false
	}
	return mesh.active, true
}

// Levels returns a copy of a mesh's levels.
func (e *Engine) Levels(id string) ([]Level, bool) {
	if e == nil {
		return nil, false
	}
	mesh, ok := e.meshes[id]
	if !ok {
		return nil, false
	}
	return mesh.specs(), true
}

// UnregisterMesh disposes a mesh's proxies and stops managing it. Unknown ids
// are ignored.
func (e *Engine) UnregisterMesh(id string) {
	if e == nil {
		return
	}
	mesh, ok := e.meshes[id]
	if !ok {
		return
	}
	mesh.disposeProxies()
	mesh.object.SetVisible(true)
	delete(e.meshes, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.recordGauges()
}

// Dispose stops the engine and releases every managed mesh.
func (e *Engine) Dispose() {
	if e == nil {
		return
	}
	e.Stop()
	for _, id := range append([]string(nil), e.order...) {
		e.UnregisterMesh(id)
	}
}

// Stats reports the managed set.
func (e *Engine) Stats() Stats {
	stats := Stats{PerLevel: make(map[int]int)}
	if e == nil {
		return stats
	}
	stats.Meshes = len(e.order)
	stats.Updates = e.updates
	for _, id := range e.order {
		mesh := e.meshes[id]
		stats.PerLevel[mesh.active]++
		if !mesh.generated {
			stats.FullDetail++
			continue
		}
		for _, level := range mesh.levels {
			if level.proxy != nil {
				stats.Proxies++
			}
		}
	}
	return stats
}

// generate disposes the previous proxies and builds one per level after the
// first. On failure every proxy built so far is released.
func (e *Engine) generate(mesh *managedMesh, specs []Level) error {
	mesh.disposeProxies()
	mesh.levels = toManaged(specs)
	for i := 1; i < len(mesh.levels); i++ {
		proxy, err := e.simplifier.Simplify(mesh.object, mesh.levels[i].Quality)
		if err == nil && proxy == nil {
			err = errors.New("simplifier returned no proxy")
		}
		if err != nil {
			mesh.disposeProxies()
			mesh.show(0)
			return fmt.Errorf("lod: mesh %s level %d: %w", mesh.object.ID(), i, err)
		}
		mesh.levels[i].proxy = proxy
	}
	mesh.generated = true
	mesh.show(e.levelFor(mesh))
	return nil
}

func (e *Engine) cameraPosition() r3.Vector {
	if e.camera == nil {
		return r3.Vector{}
	}
	return e.camera.CameraPosition()
}

// levelFor picks the level matching the mesh's current distance to the camera.
func (e *Engine) levelFor(mesh *managedMesh) int {
	if !mesh.generated {
		return 0
	}
	return SelectLevel(mesh.specs(), mesh.object.Position().Distance(e.cameraPosition()))
}

func (e *Engine) reportFailure(id string, err error) {
	e.logf("[lod] %v", err)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.Add(generationFailuresMetricKey, 1)
	}
	loggingLOD.GenerationFailed(context.Background(), e.cfg.Publisher, loggingLOD.GenerationPayload{
		MeshID: id,
		Error:  err.Error(),
	})
}

func (e *Engine) recordGauges() {
	if e.cfg.Metrics == nil {
		return
	}
	stats := e.Stats()
	e.cfg.Metrics.Store(meshesMetricKey, uint64(stats.Meshes))
	e.cfg.Metrics.Store(proxiesMetricKey, uint64(stats.Proxies))
	e.cfg.Metrics.Store(fullDetailMetricKey, uint64(stats.FullDetail))
}

func (e *Engine) logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Printf(format, args...)
	}
}

func toManaged(levels []Level) []managedLevel {
	managed := make([]managedLevel, len(levels))
	for i, level := range levels {
		managed[i] = managedLevel{Level: level}
	}
	return managed
}
