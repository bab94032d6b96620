package hostsim

import (
	"fmt"
	"math/rand/v2"

	"github.com/golang/geo/r3"

	"prism/client/internal/lod"
	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
)

// WorldConfig sizes the synthetic world.
type WorldConfig struct {
	Seed   uint64
	Assets int
	Bodies int
	// Extent is the half width of the square the content is scattered in.
	Extent float64
	// Every NonCloneableEvery-th asset cannot host LOD proxies. Zero makes
	// every asset cloneable.
	NonCloneableEvery int
	HeapLimit         uint64
	Renderer          RendererConfig
	Streaming         StreamingConfig
	Logger            telemetry.Logger
}

// DefaultWorldConfig returns a world that stresses the MEDIUM tier on the
// default cost model.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Seed:              7,
		Assets:            400,
		Bodies:            200,
		Extent:            300,
		NonCloneableEvery: 9,
		HeapLimit:         2 << 30,
		Renderer:          DefaultRendererConfig(),
		Streaming:         DefaultStreamingConfig(),
	}
}

// Registrar receives streamed meshes. *lod.Engine implements it.
type Registrar interface {
	RegisterMesh(obj lod.Object, opts ...lod.RegisterOption) error
	UnregisterMesh(id string)
}

// HUD records the overlay visibility for headless hosts.
type HUD struct {
	visible bool
}

// SetVisible implements quality.HUD.
func (h *HUD) SetVisible(visible bool) { h.visible = visible }

// Visible reports the overlay visibility.
func (h *HUD) Visible() bool { return h.visible }

// World bundles every synthetic collaborator around one scene.
type World struct {
	Scene     *Scene
	Renderer  *Renderer
	Streaming *Streaming
	Physics   *Physics
	Textures  *Textures
	Heap      *Heap
	HUD       *HUD

	textureSizes map[string]int
	registrar    Registrar
	logger       telemetry.Logger
}

// NewWorld scatters assets and bodies deterministically from cfg.Seed.
func NewWorld(cfg WorldConfig, timers sim.Timers) *World {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	extent := cfg.Extent
	if extent <= 0 {
		extent = DefaultWorldConfig().Extent
	}
	randomPosition := func() r3.Vector {
		return r3.Vector{X: (rng.Float64()*2 - 1) * extent, Y: 0, Z: (rng.Float64()*2 - 1) * extent}
	}

	w := &World{
		Scene:        NewScene(),
		Textures:     NewTextures(),
		HUD:          &HUD{},
		textureSizes: make(map[string]int, cfg.Assets),
		logger:       cfg.Logger,
	}
	textureEdges := []int{512, 1024, 2048, 4096}
	assets := make([]MeshSpec, 0, cfg.Assets)
	for i := 0; i < cfg.Assets; i++ {
		spec := MeshSpec{
			ID:        fmt.Sprintf("asset-%03d", i),
			Position:  randomPosition(),
			Vertices:  2_000 + rng.IntN(48_000),
			Textures:  1 + rng.IntN(3),
			Cloneable: cfg.NonCloneableEvery <= 0 || (i+1)%cfg.NonCloneableEvery != 0,
		}
		spec.Indices = spec.Vertices * 3
		if !spec.Cloneable {
			spec.Bones = 24 + rng.IntN(40)
		}
		assets = append(assets, spec)
		w.textureSizes[spec.ID] = textureEdges[rng.IntN(len(textureEdges))]
	}
	bodies := make([]Body, 0, cfg.Bodies)
	for i := 0; i < cfg.Bodies; i++ {
		bodies = append(bodies, Body{ID: fmt.Sprintf("body-%03d", i), Position: randomPosition()})
	}

	w.Renderer = NewRenderer(cfg.Renderer, timers, w.Scene)
	w.Streaming = NewStreaming(cfg.Streaming, timers, w.Scene, assets, StreamingHooks{
		Loaded:   w.onLoaded,
		Unloaded: w.onUnloaded,
	})
	w.Physics = NewPhysics(timers, 0, bodies)
	w.Heap = &Heap{
		Scene:          w.Scene,
		Textures:       w.Textures,
		Base:           64 << 20,
		BytesPerVertex: 32,
		Limit:          cfg.HeapLimit,
	}
	return w
}

// AttachLOD routes streamed meshes into r.
func (w *World) AttachLOD(r Registrar) {
	w.registrar = r
}

// Camera reports the streaming anchor, which doubles as the camera.
func (w *World) Camera() r3.Vector {
	return w.Streaming.Anchor()
}

// Start begins rendering. Streaming and physics are started by the quality
// controller.
func (w *World) Start() {
	w.Renderer.Start()
}

// Stop halts rendering.
func (w *World) Stop() {
	w.Renderer.Stop()
}

func (w *World) onLoaded(obj lod.Object, spec MeshSpec) {
	w.Textures.Add(spec.ID, w.textureSizes[spec.ID])
	if w.registrar == nil {
		return
	}
	if err := w.registrar.RegisterMesh(obj); err != nil && w.logger != nil {
		w.logger.Printf("[hostsim] register %s: %v", spec.ID, err)
	}
}

func (w *World) onUnloaded(id string) {
	if w.registrar != nil {
		w.registrar.UnregisterMesh(id)
	}
	w.Textures.Remove(id)
}
