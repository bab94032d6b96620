// Package ebitenhost runs the client in a desktop window. The window's real
// frame rate feeds the quality controller, the hardware scale shrinks the
// offscreen resolution and the performance HUD is drawn as an overlay.
package ebitenhost

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"prism/client/internal/quality"
)

// Scene is the drawable view of the world.
type Scene interface {
	ForEachVisible(fn func(id string, position r3.Vector, scale float64))
}

type Config struct {
	Title  string
	Width  int
	Height int
	TPS    int
	// WorldExtent maps world X/Z in [-WorldExtent, WorldExtent] onto the window.
	WorldExtent float64
}

func DefaultConfig() Config {
	return Config{Title: "prism", Width: 960, Height: 960, TPS: 60, WorldExtent: 300}
}

var (
	backgroundColor = color.RGBA{R: 0x10, G: 0x12, B: 0x18, A: 0xff}
	anchorColor     = color.RGBA{R: 0xf0, G: 0xc0, B: 0x40, A: 0xff}
)

// Game implements ebiten.Game, quality.FrameClock, quality.Renderer,
// quality.HUD and telemetry.DrawCallReporter. ebiten calls Update and Draw
// from one goroutine, which makes it the simulation thread.
type Game struct {
	cfg Config

	scene  Scene
	step   func(delta time.Duration)
	clock  func() time.Time
	stats  func() (quality.Stats, bool)
	anchor func() r3.Vector

	hardwareScale float64
	hudVisible    bool
	drawCalls     int
	lastUpdate    time.Time

	listeners map[uint64]func(time.Time)
	nextID    uint64
}

func NewGame(cfg Config) *Game {
	defaults := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = defaults.Width, defaults.Height
	}
	if cfg.TPS <= 0 {
		cfg.TPS = defaults.TPS
	}
	if cfg.WorldExtent <= 0 {
		cfg.WorldExtent = defaults.WorldExtent
	}
	if cfg.Title == "" {
		cfg.Title = defaults.Title
	}
	return &Game{cfg: cfg, hardwareScale: 1, listeners: make(map[uint64]func(time.Time))}
}

// Bind connects the game to the running client. step advances the
// simulation, clock reports simulation time for frame callbacks.
func (g *Game) Bind(scene Scene, step func(time.Duration), clock func() time.Time, stats func() (quality.Stats, bool), anchor func() r3.Vector) {
	g.scene = scene
	g.step = step
	g.clock = clock
	g.stats = stats
	g.anchor = anchor
}

// Run opens the window and blocks until it closes.
func Run(g *Game) error {
	ebiten.SetWindowTitle(g.cfg.Title)
	ebiten.SetWindowSize(g.cfg.Width, g.cfg.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(g.cfg.TPS)
	return ebiten.RunGame(g)
}

func (g *Game) Update() error {
	now := time.Now()
	var delta time.Duration
	if !g.lastUpdate.IsZero() {
		delta = now.Sub(g.lastUpdate)
	}
	g.lastUpdate = now
	if g.step != nil {
		g.step(delta)
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)
	bounds := screen.Bounds()
	width, height := float64(bounds.Dx()), float64(bounds.Dy())
	project := func(p r3.Vector) (float32, float32) {
		x := (p.X/g.cfg.WorldExtent + 1) / 2 * width
		y := (p.Z/g.cfg.WorldExtent + 1) / 2 * height
		return float32(x), float32(y)
	}

	calls := 0
	if g.scene != nil {
		g.scene.ForEachVisible(func(_ string, position r3.Vector, scale float64) {
			x, y := project(position)
			size := float32(2 + 4*scale)
			shade := uint8(80 + 175*clamp01(scale))
			vector.DrawFilledRect(screen, x-size/2, y-size/2, size, size, color.RGBA{R: shade / 3, G: shade, B: shade, A: 0xff}, false)
			calls++
		})
	}
	if g.anchor != nil {
		x, y := project(g.anchor())
		vector.DrawFilledCircle(screen, x, y, 4, anchorColor, true)
		calls++
	}
	if g.hudVisible && g.stats != nil {
		if stats, ok := g.stats(); ok {
			ebitenutil.DebugPrint(screen, hudText(stats))
			calls++
		}
	}
	g.drawCalls = calls

	if g.clock == nil {
		return
	}
	now := g.clock()
	for id := uint64(1); id <= g.nextID; id++ {
		if fn, ok := g.listeners[id]; ok {
			fn(now)
		}
	}
}

// Layout renders at the window size divided by the hardware scale.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	w := int(float64(outsideWidth) / g.hardwareScale)
	h := int(float64(outsideHeight) / g.hardwareScale)
	return max(w, 1), max(h, 1)
}

// FPS implements quality.FrameClock.
func (g *Game) FPS() float64 {
	return ebiten.ActualFPS()
}

// OnFrame implements quality.FrameClock.
func (g *Game) OnFrame(fn func(now time.Time)) func() {
	if fn == nil {
		return func() {}
	}
	g.nextID++
	id := g.nextID
	g.listeners[id] = fn
	return func() { delete(g.listeners, id) }
}

// DrawCalls implements telemetry.DrawCallReporter.
func (g *Game) DrawCalls() (int, bool) {
	return g.drawCalls, true
}

// ApplyConfig implements quality.Renderer.
func (g *Game) ApplyConfig(bundle quality.Bundle) error {
	scale := bundle.Settings.HardwareScale
	if scale <= 0 {
		return fmt.Errorf("hardware scale %.2f must be positive", scale)
	}
	g.hardwareScale = scale
	return nil
}

// SetVisible implements quality.HUD.
func (g *Game) SetVisible(visible bool) {
	g.hudVisible = visible
}

func hudText(stats quality.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier %s  v%d  auto=%t\n", stats.Tier, stats.Version, stats.AutoAdjust)
	fmt.Fprintf(&b, "fps %.1f  avg %.1f  target %.0f\n", stats.FPS, stats.AverageFPS, stats.TargetFPS)
	if t := stats.Telemetry; t != nil {
		fmt.Fprintf(&b, "heap %.1f%%  draws %d  verts %.2fM\n", t.HeapUsagePercent, t.DrawCalls, t.VerticesMillions())
	}
	if l := stats.LOD; l != nil {
		fmt.Fprintf(&b, "lod meshes %d  proxies %d  full %d\n", l.Meshes, l.Proxies, l.FullDetail)
	}
	if s := stats.Streaming; s != nil {
		fmt.Fprintf(&b, "streamed %d/%d  loading %d\n", s.Loaded, s.Tracked, s.Loading)
	}
	if p := stats.Physics; p != nil {
		fmt.Fprintf(&b, "bodies %d active  %d asleep\n", p.Active, p.Sleeping)
	}
	if stats.LastReason != "" {
		fmt.Fprintf(&b, "last change: %s\n", stats.LastReason)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
