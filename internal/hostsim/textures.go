package hostsim

import (
	"fmt"

	"prism/client/internal/quality"
)

type texture struct {
	id       string
	original int
	current  int
}

// Textures enforces the texture edge ceiling. A pass shrinks textures above
// the ceiling and restores shrunk textures when the ceiling rises.
type Textures struct {
	textures []*texture
	index    map[string]*texture
	maxSize  int
	passes   uint64
}

// NewTextures constructs an empty texture budget with a 1024 ceiling.
func NewTextures() *Textures {
	return &Textures{index: make(map[string]*texture), maxSize: 1024}
}

// Add tracks a texture, clamped to the current ceiling.
func (t *Textures) Add(id string, size int) {
	if _, exists := t.index[id]; exists {
		return
	}
	tex := &texture{id: id, original: size, current: min(size, t.maxSize)}
	t.textures = append(t.textures, tex)
	t.index[id] = tex
}

// Remove stops tracking a texture.
func (t *Textures) Remove(id string) {
	if _, ok := t.index[id]; !ok {
		return
	}
	delete(t.index, id)
	for i, tex := range t.textures {
		if tex.id == id {
			t.textures = append(t.textures[:i], t.textures[i+1:]...)
			break
		}
	}
}

// ApplyConfig implements quality.TextureBudgetService.
func (t *Textures) ApplyConfig(bundle quality.Bundle) error {
	size := bundle.Settings.Textures.MaxSize
	if size <= 0 {
		return fmt.Errorf("max texture size %d must be positive", size)
	}
	t.maxSize = size
	return nil
}

// ProcessSceneTextures implements quality.TextureBudgetService.
func (t *Textures) ProcessSceneTextures() error {
	for _, tex := range t.textures {
		tex.current = min(tex.original, t.maxSize)
	}
	t.passes++
	return nil
}

// Size reports the current edge length of a texture.
func (t *Textures) Size(id string) (int, bool) {
	tex, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return tex.current, true
}

// Bytes estimates resident texture memory at four bytes per texel.
func (t *Textures) Bytes() uint64 {
	var total uint64
	for _, tex := range t.textures {
		total += uint64(tex.current) * uint64(tex.current) * 4
	}
	return total
}

// Stats implements quality.TextureBudgetService.
func (t *Textures) Stats() quality.TextureStats {
	stats := quality.TextureStats{Textures: len(t.textures), MaxSize: t.maxSize, Passes: t.passes}
	for _, tex := range t.textures {
		if tex.current < tex.original {
			stats.Downscaled++
		}
	}
	return stats
}
