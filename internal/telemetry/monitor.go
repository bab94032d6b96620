package telemetry

import (
	"context"
	"math"
	"time"

	"prism/client/logging"
	loggingMonitor "prism/client/logging/monitor"
)

const (
	heapUsedMetricKey       = "telemetry_heap_used_bytes"
	heapPermilleMetricKey   = "telemetry_heap_usage_permille"
	drawCallsMetricKey      = "telemetry_draw_calls"
	activeVerticesMetricKey = "telemetry_active_vertices"
	warningsMetricKey       = "telemetry_warnings_total"
	criticalMetricKey       = "telemetry_critical_total"
)

// Ticker is the subset of sim.Timers the monitor needs.
type Ticker interface {
	Now() time.Time
	Every(interval time.Duration, fn func(now time.Time)) func()
}

// Config tunes the monitor.
type Config struct {
	HistorySamples  int
	UpdateFrequency time.Duration
	Thresholds      Thresholds
	Logger          Logger
	Metrics         Metrics
	Publisher       logging.Publisher
}

// DefaultConfig samples once per second and keeps a minute of history.
func DefaultConfig() Config {
	return Config{
		HistorySamples:  60,
		UpdateFrequency: time.Second,
		Thresholds:      DefaultThresholds(),
	}
}

// Sources are the host collaborators the monitor reads from. Any of them
// may be nil.
type Sources struct {
	Heap   HeapReader
	Scene  Scene
	Render DrawCallReporter
}

// Monitor samples memory and rendering counters on a fixed interval into a
// bounded history and classifies every sample against thresholds.
type Monitor struct {
	cfg       Config
	ticker    Ticker
	sources   Sources
	history   *History
	listeners map[uint64]func(Warning)
	nextID    uint64
	cancel    func()
	ticks     uint64
}

// NewMonitor constructs a stopped monitor.
func NewMonitor(cfg Config, ticker Ticker, sources Sources) *Monitor {
	if cfg.HistorySamples < 1 {
		cfg.HistorySamples = 60
	}
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = time.Second
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Monitor{
		cfg:       cfg,
		ticker:    ticker,
		sources:   sources,
		history:   NewHistory(cfg.HistorySamples),
		listeners: make(map[uint64]func(Warning)),
	}
}

// Start begins periodic sampling. It is a no-op while already running.
func (m *Monitor) Start() {
	if m == nil || m.cancel != nil || m.ticker == nil {
		return
	}
	m.cancel = m.ticker.Every(m.cfg.UpdateFrequency, func(time.Time) {
		m.Tick()
	})
}

// Stop cancels sampling and drops the history. Copies returned by History
// before Stop are unaffected.
func (m *Monitor) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.history = NewHistory(m.cfg.HistorySamples)
}

// Running reports whether periodic sampling is active.
func (m *Monitor) Running() bool {
	return m != nil && m.cancel != nil
}

// OnWarning registers fn for every classified warning. Listeners run
// synchronously inside the sampling tick. The returned func unsubscribes.
func (m *Monitor) OnWarning(fn func(Warning)) func() {
	if m == nil || fn == nil {
		return func() {}
	}
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() { delete(m.listeners, id) }
}

// Tick takes one sample, appends it to the history and emits its warnings.
func (m *Monitor) Tick() []Warning {
	if m == nil {
		return nil
	}
	m.ticks++
	sample := m.CurrentStats()
	m.history.Push(sample)
	m.record(sample)

	warnings := Classify(sample, m.cfg.Thresholds)
	for _, w := range warnings {
		m.emit(w)
	}
	return warnings
}

// CurrentStats computes a fresh sample without touching the history.
func (m *Monitor) CurrentStats() MemorySample {
	if m == nil {
		return MemorySample{}
	}
	sample := MemorySample{}
	if m.ticker != nil {
		sample.Timestamp = m.ticker.Now()
	}
	if m.sources.Heap != nil {
		if heap, ok := m.sources.Heap.ReadHeap(); ok {
			sample.HeapUsed = heap.Used
			sample.HeapTotal = heap.Total
			sample.HeapLimit = heap.Limit
		}
	}
	sample.HeapUsagePercent = heapPercent(sample.HeapUsed, sample.HeapLimit)

	if m.sources.Scene != nil {
		for _, obj := range m.sources.Scene.Objects() {
			if !obj.Visible {
				continue
			}
			sample.ActiveMeshes++
			sample.ActiveVertices += obj.Vertices
			sample.ActiveIndices += obj.Indices
			sample.ActiveBones += obj.Bones
			sample.ActiveTextures += obj.Textures
		}
	}

	drawCalls, ok := 0, false
	if m.sources.Render != nil {
		drawCalls, ok = m.sources.Render.DrawCalls()
	}
	if ok {
		sample.DrawCalls = drawCalls
	} else {
		sample.DrawCalls = sample.ActiveMeshes
		sample.DrawCallsEstimated = true
	}
	return sample
}

// History returns a copy of the retained samples, oldest first.
func (m *Monitor) History() []MemorySample {
	if m == nil {
		return nil
	}
	return m.history.Samples()
}

// Latest returns the newest retained sample.
func (m *Monitor) Latest() (MemorySample, bool) {
	if m == nil {
		return MemorySample{}, false
	}
	return m.history.Latest()
}

// Thresholds returns the configured thresholds.
func (m *Monitor) Thresholds() Thresholds {
	if m == nil {
		return Thresholds{}
	}
	return m.cfg.Thresholds
}

// OptimizationSuggestions derives hints from the latest sample.
func (m *Monitor) OptimizationSuggestions() []string {
	sample, ok := m.Latest()
	if !ok {
		return nil
	}
	return Suggest(sample, m.cfg.Thresholds)
}

func (m *Monitor) emit(w Warning) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Add(warningsMetricKey, 1)
		if w.Critical() {
			m.cfg.Metrics.Add(criticalMetricKey, 1)
		}
	}
	loggingMonitor.ThresholdExceeded(context.Background(), m.cfg.Publisher, m.ticks, w.Critical(), loggingMonitor.ThresholdPayload{
		Metric:    string(w.Metric),
		Level:     string(w.Severity),
		Value:     w.Value,
		Threshold: w.Threshold,
		Message:   w.Message,
	})
	if w.Critical() && m.cfg.Logger != nil {
		m.cfg.Logger.Printf("[telemetry] %s", w.Message)
	}
	for _, id := range m.listenerIDs() {
		if fn, ok := m.listeners[id]; ok {
			fn(w)
		}
	}
}

// listenerIDs returns subscription ids in registration order so a listener
// unsubscribing another mid-dispatch is honoured deterministically.
func (m *Monitor) listenerIDs() []uint64 {
	ids := make([]uint64, 0, len(m.listeners))
	for id := uint64(1); id <= m.nextID; id++ {
		if _, ok := m.listeners[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *Monitor) record(sample MemorySample) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.Store(heapUsedMetricKey, sample.HeapUsed)
	m.cfg.Metrics.Store(heapPermilleMetricKey, uint64(math.Round(sample.HeapUsagePercent*10)))
	m.cfg.Metrics.Store(drawCallsMetricKey, uint64(max(sample.DrawCalls, 0)))
	m.cfg.Metrics.Store(activeVerticesMetricKey, uint64(max(sample.ActiveVertices, 0)))
}
