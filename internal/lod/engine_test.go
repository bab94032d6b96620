package lod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"prism/client/internal/sim"
	"prism/client/logging"
	loggingLOD "prism/client/logging/lod"
)

var referenceLevels = []Level{
	{Distance: 0, Quality: 1},
	{Distance: 20, Quality: 0.75},
	{Distance: 50, Quality: 0.5},
	{Distance: 100, Quality: 0.25},
}

type fakeProxy struct {
	name     string
	scale    float64
	visible  bool
	disposed bool
}

func (p *fakeProxy) SetVisible(visible bool) { p.visible = visible }
func (p *fakeProxy) SetScale(factor float64) { p.scale = factor }
func (p *fakeProxy) Dispose()                { p.disposed = true }

type fakeMesh struct {
	id       string
	position r3.Vector
	visible  bool
	proxies  []*fakeProxy
	failAt   int
}

func (m *fakeMesh) ID() string              { return m.id }
func (m *fakeMesh) Position() r3.Vector     { return m.position }
func (m *fakeMesh) SetVisible(visible bool) { m.visible = visible }

func (m *fakeMesh) Clone(name string) (ScalableProxy, error) {
	if m.failAt > 0 && len(m.proxies)+1 >= m.failAt {
		return nil, errors.New("clone refused")
	}
	proxy := &fakeProxy{name: name, visible: true}
	m.proxies = append(m.proxies, proxy)
	return proxy, nil
}

// plainMesh cannot be cloned.
type plainMesh struct {
	id       string
	position r3.Vector
	visible  bool
}

func (m *plainMesh) ID() string              { return m.id }
func (m *plainMesh) Position() r3.Vector     { return m.position }
func (m *plainMesh) SetVisible(visible bool) { m.visible = visible }

type camera struct{ position r3.Vector }

func (c *camera) CameraPosition() r3.Vector { return c.position }

func newTestEngine(t *testing.T, cam *camera) (*Engine, *sim.Scheduler) {
	t.Helper()
	sched := sim.NewScheduler(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.DefaultLevels = referenceLevels
	return NewEngine(cfg, sched, cam, nil), sched
}

func TestSelectLevel(t *testing.T) {
	tests := []struct {
		distance float64
		want     int
	}{
		{distance: 0, want: 0},
		{distance: 19.9, want: 0},
		{distance: 20, want: 1},
		{distance: 35, want: 1},
		{distance: 50, want: 2},
		{distance: 99, want: 2},
		{distance: 1000, want: 3},
	}
	for _, tc := range tests {
		if got := SelectLevel(referenceLevels, tc.distance); got != tc.want {
			t.Fatalf("distance %.1f: expected level %d, got %d", tc.distance, tc.want, got)
		}
	}
}

func TestNormalizeLevelsSortsAndAnchorsAtZero(t *testing.T) {
	levels := NormalizeLevels([]Level{{Distance: 50, Quality: 0.5}, {Distance: 5, Quality: 1}, {Distance: 20, Quality: 0.75}})
	if levels[0].Distance != 0 || levels[0].Quality != 1 {
		t.Fatalf("expected first level anchored at 0, got %+v", levels[0])
	}
	if levels[1].Distance != 20 || levels[2].Distance != 50 {
		t.Fatalf("expected ascending distances, got %+v", levels)
	}
}

func TestValidateLevelsRejectsBadQuality(t *testing.T) {
	if err := ValidateLevels(nil); err == nil {
		t.Fatalf("expected empty levels to be rejected")
	}
	if err := ValidateLevels([]Level{{Distance: 0, Quality: 1}, {Distance: 10, Quality: 0}}); err == nil {
		t.Fatalf("expected zero quality to be rejected")
	}
	if err := ValidateLevels([]Level{{Distance: 0, Quality: 1.5}}); err == nil {
		t.Fatalf("expected quality above 1 to be rejected")
	}
	if err := ValidateLevels(referenceLevels); err != nil {
		t.Fatalf("expected reference levels to validate, got %v", err)
	}
}

func TestRegisterMeshGeneratesScaledProxies(t *testing.T) {
	engine, _ := newTestEngine(t, &camera{})
	mesh := &fakeMesh{id: "rock"}
	if err := engine.RegisterMesh(mesh); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(mesh.proxies) != 3 {
		t.Fatalf("expected 3 proxies, got %d", len(mesh.proxies))
	}
	for i, want := range []float64{0.75, 0.5, 0.25} {
		if mesh.proxies[i].scale != want {
			t.Fatalf("proxy %d: expected scale %.2f, got %.2f", i, want, mesh.proxies[i].scale)
		}
		if mesh.proxies[i].visible {
			t.Fatalf("expected proxy %d hidden after generation", i)
		}
	}
	if !mesh.visible {
		t.Fatalf("expected base mesh visible")
	}
	levels, _ := engine.Levels("rock")
	if len(levels) != len(referenceLevels) {
		t.Fatalf("expected default levels to apply, got %+v", levels)
	}
}

func TestScaleSimplifierFloorsScale(t *testing.T) {
	mesh := &fakeMesh{id: "tiny"}
	proxy, err := ScaleSimplifier{}.Simplify(mesh, 0.01)
	if err != nil {
		t.Fatalf("simplify: %v", err)
	}
	if got := proxy.(*fakeProxy).scale; got != MinScale {
		t.Fatalf("expected scale floored at %.2f, got %.2f", MinScale, got)
	}
	if _, err := (ScaleSimplifier{}).Simplify(&plainMesh{id: "plain"}, 0.5); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestUpdateActivatesExactlyOneLevel(t *testing.T) {
	cam := &camera{}
	engine, sched := newTestEngine(t, cam)
	mesh := &fakeMesh{id: "tree", position: r3.Vector{X: 35}}
	if err := engine.RegisterMesh(mesh); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine.Start()
	sched.Advance(time.Second)

	if level, _ := engine.ActiveLevel("tree"); level != 1 {
		t.Fatalf("expected level 1 at distance 35, got %d", level)
	}
	assertVisible(t, mesh, 1)

	cam.position = r3.Vector{X: 35, Z: 1000}
	sched.Advance(time.Second)
	assertVisible(t, mesh, 3)

	cam.position = r3.Vector{X: 35}
	sched.Advance(time.Second)
	assertVisible(t, mesh, 0)

	engine.Stop()
	cam.position = r3.Vector{X: 1000}
	sched.Advance(5 * time.Second)
	assertVisible(t, mesh, 0)
}

func assertVisible(t *testing.T, mesh *fakeMesh, level int) {
	t.Helper()
	visible := 0
	if mesh.visible {
		visible++
		if level != 0 {
			t.Fatalf("expected base hidden at level %d", level)
		}
	}
	for i, proxy := range mesh.proxies {
		if proxy.disposed || !proxy.visible {
			continue
		}
		visible++
		if i+1 != level {
			t.Fatalf("expected proxy for level %d visible, found level %d", level, i+1)
		}
	}
	if visible != 1 {
		t.Fatalf("expected exactly one visible representation, got %d", visible)
	}
}

func TestUnsupportedMeshStaysAtFullDetail(t *testing.T) {
	var events []logging.Event
	sched := sim.NewScheduler(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.DefaultLevels = referenceLevels
	cfg.Publisher = logging.PublisherFunc(func(_ context.Context, e logging.Event) { events = append(events, e) })
	engine := NewEngine(cfg, sched, &camera{}, nil)

	plain := &plainMesh{id: "sprite", position: r3.Vector{X: 500}}
	if err := engine.RegisterMesh(plain); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(events) != 1 || events[0].Type != loggingLOD.EventGenerationSkipped {
		t.Fatalf("expected one skipped event, got %+v", events)
	}
	engine.Update()
	if level, _ := engine.ActiveLevel("sprite"); level != 0 || !plain.visible {
		t.Fatalf("expected unsupported mesh at full detail")
	}
	if err := engine.GenerateLODs("sprite", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if stats := engine.Stats(); stats.FullDetail != 1 || stats.Proxies != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRegenerateContinuesPastFailures(t *testing.T) {
	engine, _ := newTestEngine(t, &camera{})
	good := &fakeMesh{id: "good"}
	bad := &fakeMesh{id: "bad"}
	plain := &plainMesh{id: "plain"}
	for _, obj := range []Object{bad, plain, good} {
		if err := engine.RegisterMesh(obj, WithoutGeneration()); err != nil {
			t.Fatalf("register %s: %v", obj.ID(), err)
		}
	}
	bad.failAt = 2

	report := engine.Regenerate()
	if report.Regenerated != 1 || report.Failed != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Err() == nil {
		t.Fatalf("expected joined error")
	}
	if len(good.proxies) != 3 {
		t.Fatalf("expected good mesh to be processed after the failure, got %d proxies", len(good.proxies))
	}
	for _, proxy := range bad.proxies {
		if !proxy.disposed {
			t.Fatalf("expected partial proxies of failed mesh to be disposed")
		}
	}
	if !bad.visible {
		t.Fatalf("expected failed mesh at full detail")
	}
}

func TestRegisterMeshWithoutLevelsUsesCurrentDefaults(t *testing.T) {
	engine, _ := newTestEngine(t, &camera{})
	pinned := &fakeMesh{id: "pinned"}
	if err := engine.RegisterMesh(pinned, WithLevels([]Level{{Distance: 0, Quality: 1}, {Distance: 10, Quality: 0.5}})); err != nil {
		t.Fatalf("register: %v", err)
	}
	coarse := []Level{{Distance: 0, Quality: 1}, {Distance: 40, Quality: 0.3}}
	if err := engine.SetDefaultLevels(coarse); err != nil {
		t.Fatalf("set defaults: %v", err)
	}
	follower := &fakeMesh{id: "follower"}
	if err := engine.RegisterMesh(follower); err != nil {
		t.Fatalf("register: %v", err)
	}
	levels, _ := engine.Levels("follower")
	if len(levels) != 2 || levels[1] != coarse[1] {
		t.Fatalf("expected current defaults, got %+v", levels)
	}

	if err := engine.SetDefaultLevels(referenceLevels); err != nil {
		t.Fatalf("set defaults: %v", err)
	}
	engine.Regenerate()
	if levels, _ := engine.Levels("follower"); len(levels) != 4 {
		t.Fatalf("expected follower to adopt new defaults, got %+v", levels)
	}
	if levels, _ := engine.Levels("pinned"); len(levels) != 2 || levels[1].Distance != 10 {
		t.Fatalf("expected pinned levels kept, got %+v", levels)
	}
}

func TestGenerateLODsDisposesPreviousProxies(t *testing.T) {
	engine, _ := newTestEngine(t, &camera{})
	mesh := &fakeMesh{id: "statue"}
	if err := engine.RegisterMesh(mesh); err != nil {
		t.Fatalf("register: %v", err)
	}
	first := append([]*fakeProxy(nil), mesh.proxies...)
	if err := engine.GenerateLODs("statue", []Level{{Distance: 30, Quality: 0.4}, {Distance: 0, Quality: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, proxy := range first {
		if !proxy.disposed {
			t.Fatalf("expected previous proxies disposed")
		}
	}
	if len(mesh.proxies) != 4 {
		t.Fatalf("expected one new proxy, got %d total", len(mesh.proxies))
	}
	if err := engine.GenerateLODs("missing", nil); !errors.Is(err, ErrUnknownMesh) {
		t.Fatalf("expected ErrUnknownMesh, got %v", err)
	}
}

func TestUnregisterMeshDisposesAndIgnoresUnknown(t *testing.T) {
	engine, _ := newTestEngine(t, &camera{})
	mesh := &fakeMesh{id: "crate"}
	if err := engine.RegisterMesh(mesh); err != nil {
		t.Fatalf("register: %v", err)
	}
	engine.UnregisterMesh("crate")
	engine.UnregisterMesh("crate")
	engine.UnregisterMesh("never-registered")
	for _, proxy := range mesh.proxies {
		if !proxy.disposed {
			t.Fatalf("expected proxies disposed on unregister")
		}
	}
	if _, ok := engine.ActiveLevel("crate"); ok {
		t.Fatalf("expected mesh to be forgotten")
	}
	if stats := engine.Stats(); stats.Meshes != 0 {
		t.Fatalf("expected no meshes, got %+v", stats)
	}
}

func TestDisposeReleasesEverything(t *testing.T) {
	engine, sched := newTestEngine(t, &camera{})
	a := &fakeMesh{id: "a"}
	b := &fakeMesh{id: "b"}
	_ = engine.RegisterMesh(a)
	_ = engine.RegisterMesh(b)
	engine.Start()
	engine.Dispose()
	if engine.Running() {
		t.Fatalf("expected engine stopped")
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", sched.Pending())
	}
	for _, mesh := range []*fakeMesh{a, b} {
		for _, proxy := range mesh.proxies {
			if !proxy.disposed {
				t.Fatalf("expected every proxy disposed")
			}
		}
	}
}

func TestRegenerateKeepsDistanceLevel(t *testing.T) {
	cam := &camera{}
	engine, sched := newTestEngine(t, cam)
	mesh := &fakeMesh{id: "far", position: r3.Vector{X: 1000}}
	if err := engine.RegisterMesh(mesh); err != nil {
		t.Fatalf("register: %v", err)
	}
	if level, _ := engine.ActiveLevel("far"); level != 3 {
		t.Fatalf("expected level 3 right after registration, got %d", level)
	}
	assertVisible(t, mesh, 3)

	engine.Start()
	sched.Advance(time.Second)
	engine.Regenerate()
	if level, _ := engine.ActiveLevel("far"); level != 3 {
		t.Fatalf("expected level 3 after regeneration at an unchanged distance, got %d", level)
	}
	assertVisible(t, mesh, 3)

	if err := engine.GenerateLODs("far", nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertVisible(t, mesh, 3)
}
