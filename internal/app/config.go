package app

import (
	"strconv"
	"strings"

	"prism/client/internal/hostsim"
	"prism/client/internal/observability"
	"prism/client/internal/quality"
	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
	"prism/client/logging"
)

type Config struct {
	Logger        telemetry.Logger
	Addr          string
	Quality       quality.Config
	TierTablePath string
	Telemetry     telemetry.Config
	Loop          sim.LoopConfig
	World         hostsim.WorldConfig
	Logging       logging.Config
	Observability observability.Config
	// Window runs the client in a desktop window instead of headless.
	Window bool
	// RendererLoad multiplies the synthetic frame cost.
	RendererLoad float64
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		Quality:       quality.DefaultConfig(),
		Telemetry:     telemetry.DefaultConfig(),
		Loop:          sim.DefaultLoopConfig(),
		World:         hostsim.DefaultWorldConfig(),
		Logging:       logging.DefaultConfig(),
		Observability: observability.DefaultConfig(),
		RendererLoad:  1,
	}
}

// ApplyEnv overlays environment variables on cfg. Invalid values are logged
// and ignored.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool), logger telemetry.Logger) {
	if lookup == nil {
		return
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	str := func(key string, apply func(string)) {
		if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
			apply(strings.TrimSpace(raw))
		}
	}
	boolean := func(key string, apply func(bool)) {
		str(key, func(raw string) {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				logger.Printf("invalid %s=%q: %v", key, raw, err)
				return
			}
			apply(value)
		})
	}
	integer := func(key string, apply func(int)) {
		str(key, func(raw string) {
			value, err := strconv.Atoi(raw)
			if err != nil || value <= 0 {
				logger.Printf("invalid %s=%q: must be a positive integer", key, raw)
				return
			}
			apply(value)
		})
	}
	float := func(key string, apply func(float64)) {
		str(key, func(raw string) {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil || value <= 0 {
				logger.Printf("invalid %s=%q: must be a positive number", key, raw)
				return
			}
			apply(value)
		})
	}

	str("PRISM_ADDR", func(v string) { cfg.Addr = v })
	float("PRISM_TARGET_FPS", func(v float64) { cfg.Quality.TargetFPS = v })
	boolean("PRISM_AUTO_ADJUST", func(v bool) { cfg.Quality.AutoAdjust = v })
	boolean("PRISM_SHOW_HUD", func(v bool) { cfg.Quality.ShowPerformanceHUD = v })
	str("PRISM_INITIAL_TIER", func(v string) {
		tier, err := quality.ParseTier(v)
		if err != nil {
			logger.Printf("invalid PRISM_INITIAL_TIER=%q: %v", v, err)
			return
		}
		cfg.Quality.InitialTier = tier
	})
	str("PRISM_TIER_TABLE", func(v string) { cfg.TierTablePath = v })
	integer("PRISM_HISTORY_SAMPLES", func(v int) { cfg.Telemetry.HistorySamples = v })
	integer("PRISM_HEAP_LIMIT_MB", func(v int) { cfg.World.HeapLimit = uint64(v) << 20 })
	str("PRISM_LOG_SINKS", func(v string) {
		var sinks []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sinks = append(sinks, name)
			}
		}
		cfg.Logging.EnabledSinks = sinks
	})
	str("PRISM_LOG_JSON_PATH", func(v string) { cfg.Logging.JSON.FilePath = v })
	integer("PRISM_FRAME_RATE", func(v int) { cfg.Loop.FrameRate = v })
	float("PRISM_RENDER_LOAD", func(v float64) { cfg.RendererLoad = v })
	boolean("PRISM_WINDOW", func(v bool) { cfg.Window = v })
	boolean("ENABLE_PPROF_TRACE", func(v bool) { cfg.Observability.EnablePprofTrace = v })
}
