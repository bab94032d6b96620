package quality

import (
	"time"

	"github.com/golang/geo/r3"

	"prism/client/internal/lod"
	"prism/client/internal/telemetry"
)

// FrameClock is the render loop as seen by the controller.
type FrameClock interface {
	FPS() float64
	// OnFrame registers fn for every rendered frame and returns a func that
	// unregisters it.
	OnFrame(fn func(now time.Time)) func()
}

// LODEngine is the level-of-detail subsystem the controller programs.
type LODEngine interface {
	Start()
	Stop()
	SetDefaultLevels(levels []lod.Level) error
	Regenerate() lod.RegenerateReport
	Stats() lod.Stats
}

// TelemetrySource is the monitor the controller reads and subscribes to.
type TelemetrySource interface {
	Start()
	Stop()
	Latest() (telemetry.MemorySample, bool)
	Thresholds() telemetry.Thresholds
	OnWarning(fn func(telemetry.Warning)) func()
	OptimizationSuggestions() []string
}

// StreamingStats describes the asset streaming collaborator.
type StreamingStats struct {
	Tracked        int     `json:"tracked"`
	Loaded         int     `json:"loaded"`
	Loading        int     `json:"loading"`
	LoadDistance   float64 `json:"loadDistance"`
	UnloadDistance float64 `json:"unloadDistance"`
	Loads          uint64  `json:"loads"`
	Unloads        uint64  `json:"unloads"`
	LateEvictions  uint64  `json:"lateEvictions"`
}

// StreamingService loads and unloads content around the anchor.
type StreamingService interface {
	Start(anchor r3.Vector)
	Stop()
	UpdatePlayerPosition(position r3.Vector)
	ApplyConfig(bundle Bundle) error
	Stats() StreamingStats
}

// PhysicsStats describes the physics budget collaborator.
type PhysicsStats struct {
	Bodies     int `json:"bodies"`
	Active     int `json:"active"`
	Simplified int `json:"simplified"`
	Sleeping   int `json:"sleeping"`
}

// PhysicsBudgetService simplifies and sleeps bodies by distance.
type PhysicsBudgetService interface {
	Start(anchor r3.Vector)
	Stop()
	UpdatePlayerPosition(position r3.Vector)
	ApplyConfig(bundle Bundle) error
	Stats() PhysicsStats
}

// TextureStats describes the texture budget collaborator.
type TextureStats struct {
	Textures   int    `json:"textures"`
	Downscaled int    `json:"downscaled"`
	MaxSize    int    `json:"maxSize"`
	Passes     uint64 `json:"passes"`
}

// TextureBudgetService enforces the texture resolution ceiling.
type TextureBudgetService interface {
	ApplyConfig(bundle Bundle) error
	ProcessSceneTextures() error
	Stats() TextureStats
}

// Renderer receives the hardware scale of a tier.
type Renderer interface {
	ApplyConfig(bundle Bundle) error
}

// HUD shows or hides the performance overlay.
type HUD interface {
	SetVisible(visible bool)
}

// Collaborators groups everything the controller drives. Nil members are
// skipped.
type Collaborators struct {
	Frames    FrameClock
	LOD       LODEngine
	Telemetry TelemetrySource
	Streaming StreamingService
	Physics   PhysicsBudgetService
	Textures  TextureBudgetService
	Renderer  Renderer
	HUD       HUD
}
