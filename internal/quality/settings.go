package quality

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"prism/client/internal/lod"
)

// StreamingSettings are the asset streaming distances of a tier. Unload must
// stay beyond load so content at the boundary does not thrash.
type StreamingSettings struct {
	LoadDistance   float64 `json:"loadDistance"`
	UnloadDistance float64 `json:"unloadDistance"`
}

// TextureSettings caps texture resolution.
type TextureSettings struct {
	MaxSize int `json:"maxSize"`
}

// PhysicsSettings are the physics simplification distances of a tier.
type PhysicsSettings struct {
	SleepDistance      float64 `json:"sleepDistance"`
	SimplifiedDistance float64 `json:"simplifiedDistance"`
	MaxActiveBodies    int     `json:"maxActiveBodies"`
}

// TierSettings is the parameter set pushed to every subsystem when a tier
// becomes active.
type TierSettings struct {
	HardwareScale float64           `json:"hardwareScale"`
	Streaming     StreamingSettings `json:"streaming"`
	LOD           []lod.Level       `json:"lod"`
	Textures      TextureSettings   `json:"textures"`
	Physics       PhysicsSettings   `json:"physics"`
}

// Clone returns a deep copy.
func (s TierSettings) Clone() TierSettings {
	s.LOD = append([]lod.Level(nil), s.LOD...)
	return s
}

// Validate reports every invalid field.
func (s TierSettings) Validate() error {
	var errs []error
	if s.HardwareScale <= 0 {
		errs = append(errs, fmt.Errorf("hardware scale %.2f must be positive", s.HardwareScale))
	}
	if s.Streaming.LoadDistance <= 0 {
		errs = append(errs, fmt.Errorf("load distance %.1f must be positive", s.Streaming.LoadDistance))
	}
	if s.Streaming.UnloadDistance <= s.Streaming.LoadDistance {
		errs = append(errs, fmt.Errorf("unload distance %.1f must exceed load distance %.1f", s.Streaming.UnloadDistance, s.Streaming.LoadDistance))
	}
	if err := lod.ValidateLevels(s.LOD); err != nil {
		errs = append(errs, fmt.Errorf("lod: %w", err))
	}
	if s.Textures.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("max texture size %d must be positive", s.Textures.MaxSize))
	}
	if s.Physics.SleepDistance < 0 || s.Physics.SimplifiedDistance < 0 {
		errs = append(errs, errors.New("physics distances must not be negative"))
	}
	if s.Physics.MaxActiveBodies < 0 {
		errs = append(errs, fmt.Errorf("max active bodies %d must not be negative", s.Physics.MaxActiveBodies))
	}
	return errors.Join(errs...)
}

// SettingsTable maps every tier to its settings.
type SettingsTable map[Tier]TierSettings

// Validate requires every tier to be present and valid.
func (t SettingsTable) Validate() error {
	var errs []error
	for _, tier := range Tiers() {
		settings, ok := t[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: missing", tier))
			continue
		}
		if err := settings.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tier, err))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (t SettingsTable) Clone() SettingsTable {
	if t == nil {
		return nil
	}
	cloned := make(SettingsTable, len(t))
	for tier, settings := range t {
		cloned[tier] = settings.Clone()
	}
	return cloned
}

// DefaultSettingsTable returns the reference tier table. Values grow with
// the tier by convention only.
func DefaultSettingsTable() SettingsTable {
	return SettingsTable{
		TierMinimum: {
			HardwareScale: 2,
			Streaming:     StreamingSettings{LoadDistance: 50, UnloadDistance: 70},
			LOD: []lod.Level{
				{Distance: 0, Quality: 1},
				{Distance: 10, Quality: 0.5},
				{Distance: 25, Quality: 0.25},
				{Distance: 40, Quality: 0.1},
			},
			Textures: TextureSettings{MaxSize: 256},
			Physics:  PhysicsSettings{SleepDistance: 30, SimplifiedDistance: 15, MaxActiveBodies: 32},
		},
		TierLow: {
			HardwareScale: 1.5,
			Streaming:     StreamingSettings{LoadDistance: 75, UnloadDistance: 100},
			LOD: []lod.Level{
				{Distance: 0, Quality: 1},
				{Distance: 15, Quality: 0.6},
				{Distance: 35, Quality: 0.35},
				{Distance: 70, Quality: 0.15},
			},
			Textures: TextureSettings{MaxSize: 512},
			Physics:  PhysicsSettings{SleepDistance: 45, SimplifiedDistance: 25, MaxActiveBodies: 64},
		},
		TierMedium: {
			HardwareScale: 1.25,
			Streaming:     StreamingSettings{LoadDistance: 100, UnloadDistance: 130},
			LOD: []lod.Level{
				{Distance: 0, Quality: 1},
				{Distance: 20, Quality: 0.75},
				{Distance: 50, Quality: 0.5},
				{Distance: 100, Quality: 0.25},
			},
			Textures: TextureSettings{MaxSize: 1024},
			Physics:  PhysicsSettings{SleepDistance: 60, SimplifiedDistance: 35, MaxActiveBodies: 128},
		},
		TierHigh: {
			HardwareScale: 1,
			Streaming:     StreamingSettings{LoadDistance: 150, UnloadDistance: 190},
			LOD: []lod.Level{
				{Distance: 0, Quality: 1},
				{Distance: 30, Quality: 0.8},
				{Distance: 80, Quality: 0.55},
				{Distance: 150, Quality: 0.3},
			},
			Textures: TextureSettings{MaxSize: 2048},
			Physics:  PhysicsSettings{SleepDistance: 80, SimplifiedDistance: 50, MaxActiveBodies: 256},
		},
		TierUltra: {
			HardwareScale: 1,
			Streaming:     StreamingSettings{LoadDistance: 200, UnloadDistance: 250},
			LOD: []lod.Level{
				{Distance: 0, Quality: 1},
				{Distance: 50, Quality: 0.85},
				{Distance: 120, Quality: 0.6},
				{Distance: 200, Quality: 0.35},
			},
			Textures: TextureSettings{MaxSize: 4096},
			Physics:  PhysicsSettings{SleepDistance: 120, SimplifiedDistance: 80, MaxActiveBodies: 512},
		},
	}
}

// ParseSettingsTable decodes a YAML or JSON tier table keyed by tier name.
// Tiers present in data replace the defaults; absent tiers keep them.
func ParseSettingsTable(data []byte) (SettingsTable, error) {
	table := DefaultSettingsTable()
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode tier table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tier table: %w", err)
	}
	return table, nil
}

// LoadSettingsTable reads a tier table file.
func LoadSettingsTable(path string) (SettingsTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier table: %w", err)
	}
	return ParseSettingsTable(data)
}

// Bundle is the versioned value handed to collaborators on every applied
// transition. Version increases by one per transition.
type Bundle struct {
	Version  uint64       `json:"version"`
	Tier     Tier         `json:"tier"`
	Settings TierSettings `json:"settings"`
}
