package quality

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDefaultSettingsTableKeepsHysteresis(t *testing.T) {
	table := DefaultSettingsTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("expected default table to validate, got %v", err)
	}
	for _, tier := range Tiers() {
		streaming := table[tier].Streaming
		if streaming.UnloadDistance <= streaming.LoadDistance {
			t.Fatalf("%s: expected unload %.1f beyond load %.1f", tier, streaming.UnloadDistance, streaming.LoadDistance)
		}
	}
}

func TestSettingsTableValidateCollectsViolations(t *testing.T) {
	table := DefaultSettingsTable()
	broken := table[TierLow]
	broken.Streaming.UnloadDistance = broken.Streaming.LoadDistance
	broken.Textures.MaxSize = 0
	table[TierLow] = broken
	delete(table, TierUltra)

	err := table.Validate()
	if err == nil {
		t.Fatalf("expected validation to fail")
	}
	message := err.Error()
	for _, want := range []string{"low: ", "unload distance", "max texture size", "ultra: missing"} {
		if !strings.Contains(message, want) {
			t.Fatalf("expected %q in %q", want, message)
		}
	}
}

func TestParseSettingsTableOverridesNamedTiers(t *testing.T) {
	data := []byte(`
medium:
  hardwareScale: 1.1
  streaming:
    loadDistance: 90
    unloadDistance: 120
  lod:
    - distance: 0
      quality: 1
    - distance: 40
      quality: 0.4
  textures:
    maxSize: 1024
  physics:
    sleepDistance: 55
    simplifiedDistance: 30
    maxActiveBodies: 100
`)
	table, err := ParseSettingsTable(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	medium := table[TierMedium]
	if medium.Streaming.LoadDistance != 90 || len(medium.LOD) != 2 || medium.Physics.MaxActiveBodies != 100 {
		t.Fatalf("unexpected medium settings: %+v", medium)
	}
	if table[TierHigh].Streaming.LoadDistance != DefaultSettingsTable()[TierHigh].Streaming.LoadDistance {
		t.Fatalf("expected untouched tiers to keep defaults")
	}
}

func TestParseSettingsTableRejectsThrashingDistances(t *testing.T) {
	data := []byte(`
low:
  hardwareScale: 1.5
  streaming: {loadDistance: 100, unloadDistance: 80}
  lod: [{distance: 0, quality: 1}]
  textures: {maxSize: 512}
  physics: {sleepDistance: 45, simplifiedDistance: 25}
`)
	if _, err := ParseSettingsTable(data); err == nil || !strings.Contains(err.Error(), "unload distance") {
		t.Fatalf("expected hysteresis violation, got %v", err)
	}
	if _, err := ParseSettingsTable([]byte("extreme: {}")); err == nil || !strings.Contains(err.Error(), "unknown tier") {
		t.Fatalf("expected unknown tier error, got %v", err)
	}
}

func TestTierStepClampsAtBounds(t *testing.T) {
	if TierMinimum.Step(-1) != TierMinimum {
		t.Fatalf("expected minimum to stay put")
	}
	if TierUltra.Step(1) != TierUltra {
		t.Fatalf("expected ultra to stay put")
	}
	if TierHigh.Step(-1) != TierMedium || TierHigh.Step(1) != TierUltra {
		t.Fatalf("expected single steps from high")
	}
}

func TestTierText(t *testing.T) {
	tier, err := ParseTier(" Medium ")
	if err != nil || tier != TierMedium {
		t.Fatalf("expected medium, got %v (%v)", tier, err)
	}
	encoded, err := json.Marshal(Bundle{Version: 3, Tier: TierLow})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"tier":"low"`) {
		t.Fatalf("expected tier name in %s", encoded)
	}
	if _, err := Tier(0).MarshalText(); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected zero tier to be rejected, got %v", err)
	}
}

func TestFPSWindow(t *testing.T) {
	window := NewFPSWindow(3)
	for _, fps := range []float64{10, 20, 30, 40} {
		window.Push(fps)
	}
	if window.Len() != 3 || window.Average() != 30 {
		t.Fatalf("expected [20 30 40], got %v", window.Samples())
	}
	if recent, ok := window.Recent(2); !ok || recent != 35 {
		t.Fatalf("expected recent average 35, got %v", recent)
	}
	if _, ok := window.Recent(4); ok {
		t.Fatalf("expected too few samples")
	}
	window.Reset()
	if window.Len() != 0 || window.Average() != 0 {
		t.Fatalf("expected empty window after reset")
	}
}
