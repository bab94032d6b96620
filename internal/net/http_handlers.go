package net

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"

	"prism/client/internal/observability"
	"prism/client/internal/quality"
	"prism/client/internal/sim"
	"prism/client/internal/telemetry"
)

const (
	writeWait          = 10 * time.Second
	defaultHUDInterval = 250 * time.Millisecond

	// ProtocolVersion tags every websocket payload.
	ProtocolVersion = 1

	commandSource = "http"
)

// Host is the view of the running client the HTTP surface needs. Snapshot
// and Suggestions must be safe to call from request goroutines; mutations
// go through Enqueue so they land on the simulation thread.
type Host interface {
	Snapshot() (quality.Stats, bool)
	Suggestions() []string
	Enqueue(cmd sim.Command) (bool, string)
}

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Metrics       nethttp.Handler
	Observability observability.Config
	// HUDInterval is the push period of /ws/hud.
	HUDInterval time.Duration
	Now         func() time.Time
}

type qualityRequest struct {
	Tier       string `json:"tier"`
	AutoAdjust *bool  `json:"autoAdjust,omitempty"`
}

type hudRequest struct {
	Visible bool `json:"visible"`
}

type anchorRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type commandResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type hudMessage struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	ServerTime int64         `json:"serverTime"`
	Stats      quality.Stats `json:"stats"`
}

type clientMessage struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible"`
	Tier    string `json:"tier"`
}

func NewHTTPHandler(host Host, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	interval := cfg.HUDInterval
	if interval <= 0 {
		interval = defaultHUDInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		stats, ok := host.Snapshot()
		status := "ok"
		if !ok {
			status = "starting"
		}
		payload := struct {
			Status      string         `json:"status"`
			ServerTime  int64          `json:"serverTime"`
			Stats       *quality.Stats `json:"stats,omitempty"`
			Suggestions []string       `json:"suggestions"`
		}{
			Status:      status,
			ServerTime:  now().UnixMilli(),
			Suggestions: nonNil(host.Suggestions()),
		}
		if ok {
			payload.Stats = &stats
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/quality", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodGet:
			stats, ok := host.Snapshot()
			if !ok {
				httpError(w, "not running", nethttp.StatusServiceUnavailable)
				return
			}
			writeJSON(w, nethttp.StatusOK, struct {
				Tier       quality.Tier `json:"tier"`
				Version    uint64       `json:"version"`
				AutoAdjust bool         `json:"autoAdjust"`
				AverageFPS float64      `json:"averageFps"`
				TargetFPS  float64      `json:"targetFps"`
			}{stats.Tier, stats.Version, stats.AutoAdjust, stats.AverageFPS, stats.TargetFPS})
		case nethttp.MethodPost:
			var req qualityRequest
			if !decodeBody(w, r, &req) {
				return
			}
			if _, err := quality.ParseTier(req.Tier); err != nil {
				httpError(w, err.Error(), nethttp.StatusBadRequest)
				return
			}
			enqueue(w, host, sim.Command{
				Type:     sim.CommandSetQuality,
				Source:   commandSource,
				IssuedAt: now(),
				Quality:  &sim.QualityCommand{Tier: req.Tier, AutoAdjust: req.AutoAdjust},
			})
		default:
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/hud", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req hudRequest
		if !decodeBody(w, r, &req) {
			return
		}
		enqueue(w, host, sim.Command{
			Type:     sim.CommandToggleHUD,
			Source:   commandSource,
			IssuedAt: now(),
			HUD:      &sim.HUDCommand{Visible: req.Visible},
		})
	})

	mux.HandleFunc("/anchor", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req anchorRequest
		if !decodeBody(w, r, &req) {
			return
		}
		enqueue(w, host, sim.Command{
			Type:     sim.CommandMoveAnchor,
			Source:   commandSource,
			IssuedAt: now(),
			Anchor:   &sim.AnchorCommand{Position: r3.Vector{X: req.X, Y: req.Y, Z: req.Z}},
		})
	})

	mux.HandleFunc("/suggestions", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, nethttp.StatusOK, struct {
			Suggestions []string `json:"suggestions"`
		}{nonNil(host.Suggestions())})
	})

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws/hud", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("[hud] upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg clientMessage
				if err := json.Unmarshal(payload, &msg); err != nil {
					logger.Printf("[hud] discarding malformed message from %s: %v", r.RemoteAddr, err)
					continue
				}
				var cmd sim.Command
				switch msg.Type {
				case "hud":
					cmd = sim.Command{Type: sim.CommandToggleHUD, HUD: &sim.HUDCommand{Visible: msg.Visible}}
				case "quality":
					if _, err := quality.ParseTier(msg.Tier); err != nil {
						logger.Printf("[hud] %v from %s", err, r.RemoteAddr)
						continue
					}
					cmd = sim.Command{Type: sim.CommandSetQuality, Quality: &sim.QualityCommand{Tier: msg.Tier}}
				default:
					logger.Printf("[hud] unknown message type %q from %s", msg.Type, r.RemoteAddr)
					continue
				}
				cmd.Source = "ws"
				cmd.IssuedAt = now()
				if ok, reason := host.Enqueue(cmd); !ok {
					logger.Printf("[hud] command %s rejected: %s", cmd.Type, reason)
				}
			}
		}()

		push := func() bool {
			stats, ok := host.Snapshot()
			if !ok {
				return true
			}
			data, err := json.Marshal(hudMessage{Ver: ProtocolVersion, Type: "hud", ServerTime: now().UnixMilli(), Stats: stats})
			if err != nil {
				logger.Printf("[hud] failed to marshal snapshot: %v", err)
				return true
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteMessage(websocket.TextMessage, data) == nil
		}

		if !push() {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !push() {
					return
				}
			}
		}
	})

	return mux
}

func enqueue(w nethttp.ResponseWriter, host Host, cmd sim.Command) {
	ok, reason := host.Enqueue(cmd)
	if !ok {
		code := nethttp.StatusServiceUnavailable
		if reason == sim.CommandRejectInvalid {
			code = nethttp.StatusBadRequest
		}
		writeJSON(w, code, commandResponse{Status: "rejected", Reason: reason})
		return
	}
	writeJSON(w, nethttp.StatusAccepted, commandResponse{Status: "queued"})
}

func decodeBody(w nethttp.ResponseWriter, r *nethttp.Request, dst any) bool {
	if r.Body == nil {
		httpError(w, "missing payload", nethttp.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			httpError(w, "missing payload", nethttp.StatusBadRequest)
		} else {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
		}
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
