package lod

import (
	"errors"
	"fmt"
	"sort"
)

// Level activates a representation once the camera is at least Distance
// away. Quality is the detail fraction in (0,1].
type Level struct {
	Distance float64 `json:"distance"`
	Quality  float64 `json:"quality"`
}

// ValidateLevels reports every problem with levels.
func ValidateLevels(levels []Level) error {
	if len(levels) == 0 {
		return errors.New("at least one level is required")
	}
	var errs []error
	for i, level := range levels {
		if level.Distance < 0 {
			errs = append(errs, fmt.Errorf("level %d: distance %.2f is negative", i, level.Distance))
		}
		if level.Quality <= 0 || level.Quality > 1 {
			errs = append(errs, fmt.Errorf("level %d: quality %.2f outside (0,1]", i, level.Quality))
		}
	}
	return errors.Join(errs...)
}

// NormalizeLevels returns a sorted copy of levels whose first distance is 0,
// so that some level always matches.
func NormalizeLevels(levels []Level) []Level {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]Level(nil), levels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})
	sorted[0].Distance = 0
	return sorted
}

// SelectLevel returns the index of the level with the greatest distance not
// exceeding distance. levels must be normalized.
func SelectLevel(levels []Level, distance float64) int {
	selected := 0
	for i := 1; i < len(levels); i++ {
		if levels[i].Distance > distance {
			break
		}
		selected = i
	}
	return selected
}
