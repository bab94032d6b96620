package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"prism/client/internal/hostsim"
	"prism/client/internal/lod"
	clientnet "prism/client/internal/net"
	"prism/client/internal/observability"
	"prism/client/internal/quality"
	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
	"prism/client/logging"
	loggingSinks "prism/client/logging/sinks"
)

// Frontend replaces the synthetic renderer with a real one: it supplies the
// frame clock, applies the hardware scale, shows the HUD and counts draw
// calls.
type Frontend interface {
	quality.FrameClock
	quality.Renderer
	quality.HUD
	telemetry.DrawCallReporter
}

// Options carries process-level dependencies that do not come from the
// environment.
type Options struct {
	// Zap backs the zap event sink. Nil disables the sink.
	Zap *zap.Logger
	// Output receives the console sink. Defaults to os.Stdout.
	Output   io.Writer
	Frontend Frontend
	Start    time.Time
}

// App owns every component of a running client. Everything except Enqueue,
// Snapshot, Suggestions and Handler runs on the simulation thread.
type App struct {
	cfg    Config
	logger telemetry.Logger

	router  *logging.Router
	metrics *logging.Metrics
	sched   *sim.Scheduler
	loop    *sim.Loop

	World      *hostsim.World
	LOD        *lod.Engine
	Monitor    *telemetry.Monitor
	Controller *quality.Controller
	exporter   *observability.Exporter
	frontend   Frontend

	snapshot    atomic.Pointer[quality.Stats]
	suggestions atomic.Pointer[[]string]
	jsonFile    *os.File
	started     bool
}

func New(cfg Config, opts Options) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	fallbackLogger := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	a := &App{cfg: cfg, logger: logger, metrics: &logging.Metrics{}, frontend: opts.Frontend}

	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(output),
		"memory":  loggingSinks.NewMemorySink(),
	}
	if opts.Zap != nil {
		sinks["zap"] = loggingSinks.NewZap(opts.Zap)
	}
	if path := cfg.Logging.JSON.FilePath; path != "" && cfg.Logging.HasSink("json") {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open json log %s: %w", path, err)
		}
		a.jsonFile = file
		sinks["json"] = loggingSinks.NewJSON(file, cfg.Logging.JSON)
	}
	if len(cfg.Logging.EnabledSinks) == 0 {
		// An empty list would enable every sink, the in-memory one included.
		delete(sinks, "memory")
	}
	router, err := logging.NewRouter(cfg.Logging, logging.SystemClock{}, fallbackLogger, sinks, logging.WithCounters(a.metrics))
	if err != nil {
		a.closeJSON()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	a.router = router

	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	a.sched = sim.NewScheduler(start)
	metrics := telemetry.WrapMetrics(a.metrics)

	worldCfg := cfg.World
	worldCfg.Logger = logger
	a.World = hostsim.NewWorld(worldCfg, a.sched)
	if cfg.RendererLoad > 0 {
		if err := a.World.Renderer.SetLoad(cfg.RendererLoad); err != nil {
			logger.Printf("ignoring renderer load: %v", err)
		}
	}

	var drawCalls telemetry.DrawCallReporter = a.World.Renderer
	if a.frontend != nil {
		drawCalls = a.frontend
	}
	telemetryCfg := cfg.Telemetry
	telemetryCfg.Logger = logger
	telemetryCfg.Metrics = metrics
	telemetryCfg.Publisher = router
	a.Monitor = telemetry.NewMonitor(telemetryCfg, a.sched, telemetry.Sources{
		Heap:   a.World.Heap,
		Scene:  a.World.Scene,
		Render: drawCalls,
	})

	lodCfg := lod.DefaultConfig()
	lodCfg.Logger = logger
	lodCfg.Metrics = metrics
	lodCfg.Publisher = router
	a.LOD = lod.NewEngine(lodCfg, a.sched, lod.CameraFunc(a.World.Camera), nil)
	a.World.AttachLOD(a.LOD)

	qualityCfg := cfg.Quality
	if cfg.TierTablePath != "" {
		table, err := quality.LoadSettingsTable(cfg.TierTablePath)
		if err != nil {
			a.shutdownLogging()
			return nil, fmt.Errorf("failed to load tier table: %w", err)
		}
		qualityCfg.Settings = table
	}
	qualityCfg.Logger = logger
	qualityCfg.Metrics = metrics
	qualityCfg.Publisher = router

	collab := quality.Collaborators{
		Frames:    a.World.Renderer,
		LOD:       a.LOD,
		Telemetry: a.Monitor,
		Streaming: a.World.Streaming,
		Physics:   a.World.Physics,
		Textures:  a.World.Textures,
		Renderer:  a.World.Renderer,
		HUD:       a.World.HUD,
	}
	if a.frontend != nil {
		collab.Frames = a.frontend
		collab.Renderer = a.frontend
		collab.HUD = a.frontend
	}
	a.Controller, err = quality.New(qualityCfg, a.sched, collab)
	if err != nil {
		a.shutdownLogging()
		return nil, err
	}

	a.loop = sim.NewLoop(a.sched, cfg.Loop, sim.LoopDeps{
		Logger:    logger,
		Metrics:   metrics,
		Publisher: router,
	}, sim.LoopHooks{
		Apply:     a.apply,
		AfterStep: func(sim.LoopStepResult) { a.publishSnapshot() },
	})

	a.exporter, err = observability.NewExporter(cfg.Observability, a.metrics, a.Snapshot)
	if err != nil {
		a.shutdownLogging()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return a, nil
}

// Start begins rendering and hands control to the quality controller.
func (a *App) Start() error {
	if a.started {
		return quality.ErrAlreadyRunning
	}
	if a.frontend == nil {
		a.World.Start()
	}
	if err := a.Controller.Start(r3.Vector{}); err != nil {
		a.World.Stop()
		return err
	}
	a.started = true
	a.publishSnapshot()
	return nil
}

// Step advances the simulation by delta. It is the frontend's entry point.
func (a *App) Step(delta time.Duration) {
	a.loop.Step(delta)
}

// Now reports simulation time.
func (a *App) Now() time.Time {
	return a.sched.Now()
}

// Anchor reports the tracked player position.
func (a *App) Anchor() r3.Vector {
	return a.World.Camera()
}

// Enqueue implements net.Host.
func (a *App) Enqueue(cmd sim.Command) (bool, string) {
	return a.loop.Enqueue(cmd)
}

// Snapshot implements net.Host and observability.StatsFunc.
func (a *App) Snapshot() (quality.Stats, bool) {
	stats := a.snapshot.Load()
	if stats == nil {
		return quality.Stats{}, false
	}
	return *stats, true
}

// Suggestions implements net.Host.
func (a *App) Suggestions() []string {
	suggestions := a.suggestions.Load()
	if suggestions == nil {
		return nil
	}
	return append([]string(nil), (*suggestions)...)
}

// Metrics exposes the keyed telemetry values.
func (a *App) Metrics() *logging.Metrics {
	return a.metrics
}

// Router exposes the event router.
func (a *App) Router() *logging.Router {
	return a.router
}

// Handler builds the HTTP surface.
func (a *App) Handler() http.Handler {
	return clientnet.NewHTTPHandler(a, clientnet.HTTPHandlerConfig{
		Logger:        a.logger,
		Metrics:       a.exporter.Handler(),
		Observability: a.cfg.Observability,
	})
}

// Serve listens on cfg.Addr until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: a.cfg.Addr, Handler: a.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.logger.Printf("client listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Close stops every component and flushes the event sinks. It must not run
// concurrently with Step.
func (a *App) Close() error {
	a.Controller.Stop()
	a.World.Stop()
	a.LOD.Dispose()
	a.started = false
	return a.shutdownLogging()
}

func (a *App) apply(cmds []sim.Command) {
	for _, cmd := range cmds {
		switch cmd.Type {
		case sim.CommandSetQuality:
			tier, err := quality.ParseTier(cmd.Quality.Tier)
			if err != nil {
				a.logger.Printf("[command] %s from %s: %v", cmd.Type, cmd.Source, err)
				continue
			}
			if cmd.Quality.AutoAdjust != nil {
				a.Controller.SetAutoAdjust(*cmd.Quality.AutoAdjust)
			}
			if err := a.Controller.SetQualityLevel(tier); err != nil {
				a.logger.Printf("[command] %s from %s: %v", cmd.Type, cmd.Source, err)
			}
		case sim.CommandToggleHUD:
			a.Controller.TogglePerformanceHUD(cmd.HUD.Visible)
		case sim.CommandMoveAnchor:
			a.Controller.UpdatePlayerPosition(cmd.Anchor.Position)
		}
	}
}

func (a *App) publishSnapshot() {
	stats := a.Controller.Stats()
	a.snapshot.Store(&stats)
	a.router.SetBundle(stats.Tier.String(), stats.Version)
	suggestions := a.Controller.OptimizationSuggestions()
	a.suggestions.Store(&suggestions)
}

func (a *App) shutdownLogging() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.router.Close(ctx)
	a.closeJSON()
	return err
}

func (a *App) closeJSON() {
	if a.jsonFile != nil {
		a.jsonFile.Close()
		a.jsonFile = nil
	}
}

// Run starts a headless client, serves HTTP and drives the simulation from
// wall-clock time until ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts Options) error {
	a, err := New(cfg, opts)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Close()
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.loop.Run(stop)
	}()

	serveErr := a.Serve(ctx)
	close(stop)
	<-done

	if err := a.Close(); err != nil {
		a.logger.Printf("failed to close logging router: %v", err)
	}
	return serveErr
}
