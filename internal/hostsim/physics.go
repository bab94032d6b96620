package hostsim

import (
	"errors"
	"sort"
	"time"

	"github.com/golang/geo/r3"

	"prism/client/internal/quality"
	"prism/client/internal/sim"
)

// Body is a physics body of the synthetic world.
type Body struct {
	ID       string
	Position r3.Vector
}

type bodyMode int

const (
	bodyFull bodyMode = iota
	bodySimplified
	bodySleeping
)

// Physics puts bodies to sleep past the sleep distance, uses simplified
// collision past the simplified distance and caps the active set, nearest
// bodies first.
type Physics struct {
	timers   sim.Timers
	interval time.Duration
	bodies   []Body
	modes    map[string]bodyMode

	settings quality.PhysicsSettings
	anchor   r3.Vector
	cancel   sim.CancelFunc
}

// NewPhysics constructs an idle physics budget over bodies.
func NewPhysics(timers sim.Timers, interval time.Duration, bodies []Body) *Physics {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Physics{
		timers:   timers,
		interval: interval,
		bodies:   append([]Body(nil), bodies...),
		modes:    make(map[string]bodyMode, len(bodies)),
		settings: quality.PhysicsSettings{SleepDistance: 60, SimplifiedDistance: 35},
	}
}

// Start implements quality.PhysicsBudgetService.
func (p *Physics) Start(anchor r3.Vector) {
	p.anchor = anchor
	if p.cancel != nil || p.timers == nil {
		return
	}
	p.cancel = p.timers.Every(p.interval, func(time.Time) { p.Update() })
	p.Update()
}

// Stop implements quality.PhysicsBudgetService.
func (p *Physics) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

// UpdatePlayerPosition implements quality.PhysicsBudgetService.
func (p *Physics) UpdatePlayerPosition(position r3.Vector) {
	p.anchor = position
}

// ApplyConfig implements quality.PhysicsBudgetService.
func (p *Physics) ApplyConfig(bundle quality.Bundle) error {
	settings := bundle.Settings.Physics
	if settings.SleepDistance < 0 || settings.SimplifiedDistance < 0 {
		return errors.New("physics distances must not be negative")
	}
	p.settings = settings
	p.Update()
	return nil
}

// Update reclassifies every body.
func (p *Physics) Update() {
	ordered := append([]Body(nil), p.bodies...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position.Distance(p.anchor) < ordered[j].Position.Distance(p.anchor)
	})
	active := 0
	for _, body := range ordered {
		distance := body.Position.Distance(p.anchor)
		mode := bodyFull
		switch {
		case distance > p.settings.SleepDistance:
			mode = bodySleeping
		case distance > p.settings.SimplifiedDistance:
			mode = bodySimplified
		}
		if mode != bodySleeping {
			if p.settings.MaxActiveBodies > 0 && active >= p.settings.MaxActiveBodies {
				mode = bodySleeping
			} else {
				active++
			}
		}
		p.modes[body.ID] = mode
	}
}

// Stats implements quality.PhysicsBudgetService.
func (p *Physics) Stats() quality.PhysicsStats {
	stats := quality.PhysicsStats{Bodies: len(p.bodies)}
	for _, body := range p.bodies {
		switch p.modes[body.ID] {
		case bodySleeping:
			stats.Sleeping++
		case bodySimplified:
			stats.Simplified++
			stats.Active++
		default:
			stats.Active++
		}
	}
	return stats
}
