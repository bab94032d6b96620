package quality

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a global detail preset. Tiers are totally ordered from
// TierMinimum to TierUltra; the zero value is not a tier.
type Tier int

const (
	TierMinimum Tier = iota + 1
	TierLow
	TierMedium
	TierHigh
	TierUltra
)

// ErrUnknownTier is returned for values outside the tier range.
var ErrUnknownTier = errors.New("quality: unknown tier")

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierMinimum, TierLow, TierMedium, TierHigh, TierUltra}
}

var tierNames = map[Tier]string{
	TierMinimum: "minimum",
	TierLow:     "low",
	TierMedium:  "medium",
	TierHigh:    "high",
	TierUltra:   "ultra",
}

// Valid reports whether t is one of the five tiers.
func (t Tier) Valid() bool {
	return t >= TierMinimum && t <= TierUltra
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Step returns the adjacent tier in direction (negative is down), clamped
// at TierMinimum and TierUltra.
func (t Tier) Step(direction int) Tier {
	switch {
	case direction < 0 && t > TierMinimum:
		return t - 1
	case direction > 0 && t < TierUltra:
		return t + 1
	default:
		return t
	}
}

// ParseTier accepts a tier name in any case.
func ParseTier(value string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for tier, name := range tierNames {
		if name == normalized {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, value)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
