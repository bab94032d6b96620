package hostsim

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"prism/client/internal/lod"
	"prism/client/internal/quality"
	"prism/client/internal/sim"
)

type assetState int

const (
	assetUnloaded assetState = iota
	assetLoading
	assetLoaded
)

// StreamingConfig tunes the synthetic asset streamer.
type StreamingConfig struct {
	TickInterval time.Duration
	LoadLatency  time.Duration
}

// DefaultStreamingConfig checks distances twice a second and takes 300ms
// per load.
func DefaultStreamingConfig() StreamingConfig {
	return StreamingConfig{TickInterval: 500 * time.Millisecond, LoadLatency: 300 * time.Millisecond}
}

// StreamingHooks observe loads and unloads.
type StreamingHooks struct {
	Loaded   func(obj lod.Object, spec MeshSpec)
	Unloaded func(id string)
}

// Streaming loads scene content inside the load distance and unloads it past
// the unload distance. Loads are never cancelled: a load that completes
// after its asset left the unload distance is evicted on arrival.
type Streaming struct {
	cfg    StreamingConfig
	timers sim.Timers
	scene  *Scene
	hooks  StreamingHooks

	assets []MeshSpec
	states map[string]assetState

	loadDistance   float64
	unloadDistance float64
	anchor         r3.Vector
	cancel         sim.CancelFunc

	loads         uint64
	unloads       uint64
	lateEvictions uint64
}

// NewStreaming constructs an idle streamer over assets.
func NewStreaming(cfg StreamingConfig, timers sim.Timers, scene *Scene, assets []MeshSpec, hooks StreamingHooks) *Streaming {
	defaults := DefaultStreamingConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.LoadLatency < 0 {
		cfg.LoadLatency = 0
	}
	states := make(map[string]assetState, len(assets))
	for _, asset := range assets {
		states[asset.ID] = assetUnloaded
	}
	return &Streaming{
		cfg:            cfg,
		timers:         timers,
		scene:          scene,
		hooks:          hooks,
		assets:         append([]MeshSpec(nil), assets...),
		states:         states,
		loadDistance:   100,
		unloadDistance: 130,
	}
}

// Start implements quality.StreamingService.
func (s *Streaming) Start(anchor r3.Vector) {
	s.anchor = anchor
	if s.cancel != nil || s.timers == nil {
		return
	}
	s.cancel = s.timers.Every(s.cfg.TickInterval, func(time.Time) { s.Update() })
	s.Update()
}

// Stop implements quality.StreamingService. Loads in flight still complete.
func (s *Streaming) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

// UpdatePlayerPosition implements quality.StreamingService.
func (s *Streaming) UpdatePlayerPosition(position r3.Vector) {
	s.anchor = position
}

// Anchor reports the tracked position.
func (s *Streaming) Anchor() r3.Vector {
	return s.anchor
}

// ApplyConfig implements quality.StreamingService.
func (s *Streaming) ApplyConfig(bundle quality.Bundle) error {
	settings := bundle.Settings.Streaming
	if settings.UnloadDistance <= settings.LoadDistance {
		return fmt.Errorf("unload distance %.1f must exceed load distance %.1f", settings.UnloadDistance, settings.LoadDistance)
	}
	s.loadDistance = settings.LoadDistance
	s.unloadDistance = settings.UnloadDistance
	return nil
}

// Update starts loads inside the load distance and unloads content past the
// unload distance. Assets between the two keep their state.
func (s *Streaming) Update() {
	for _, asset := range s.assets {
		distance := asset.Position.Distance(s.anchor)
		switch s.states[asset.ID] {
		case assetUnloaded:
			if distance <= s.loadDistance {
				s.beginLoad(asset)
			}
		case assetLoaded:
			if distance > s.unloadDistance {
				s.unload(asset.ID)
			}
		}
	}
}

// Stats implements quality.StreamingService.
func (s *Streaming) Stats() quality.StreamingStats {
	stats := quality.StreamingStats{
		Tracked:        len(s.assets),
		LoadDistance:   s.loadDistance,
		UnloadDistance: s.unloadDistance,
		Loads:          s.loads,
		Unloads:        s.unloads,
		LateEvictions:  s.lateEvictions,
	}
	for _, state := range s.states {
		switch state {
		case assetLoaded:
			stats.Loaded++
		case assetLoading:
			stats.Loading++
		}
	}
	return stats
}

// Loaded reports whether an asset is in the scene.
func (s *Streaming) Loaded(id string) bool {
	return s.states[id] == assetLoaded
}

func (s *Streaming) beginLoad(asset MeshSpec) {
	s.states[asset.ID] = assetLoading
	if s.cfg.LoadLatency == 0 || s.timers == nil {
		s.complete(asset)
		return
	}
	s.timers.After(s.cfg.LoadLatency, func(time.Time) { s.complete(asset) })
}

func (s *Streaming) complete(asset MeshSpec) {
	if s.states[asset.ID] != assetLoading {
		return
	}
	s.states[asset.ID] = assetLoaded
	s.loads++
	obj := s.scene.Add(asset)
	if s.hooks.Loaded != nil {
		s.hooks.Loaded(obj, asset)
	}
	if asset.Position.Distance(s.anchor) > s.unloadDistance {
		s.lateEvictions++
		s.unload(asset.ID)
	}
}

func (s *Streaming) unload(id string) {
	if s.hooks.Unloaded != nil {
		s.hooks.Unloaded(id)
	}
	s.scene.Remove(id)
	s.states[id] = assetUnloaded
	s.unloads++
}
