package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"prism/client/internal/quality"
	"prism/client/internal/telemetry"
	"prism/client/logging"
)

func gather(t *testing.T, exporter *Exporter) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func TestExporterPublishesKeyedMetrics(t *testing.T) {
	metrics := &logging.Metrics{}
	metrics.TelemetryStore("quality_tier", 3)
	metrics.TelemetryAdd("quality_transitions_total", 2)

	exporter, err := NewExporter(Config{Namespace: "test"}, metrics, nil)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	families := gather(t, exporter)

	tier, ok := families["test_quality_tier"]
	if !ok || tier.GetType() != dto.MetricType_GAUGE {
		t.Fatalf("expected quality tier gauge, got %v", tier)
	}
	if value := tier.GetMetric()[0].GetGauge().GetValue(); value != 3 {
		t.Fatalf("expected tier 3, got %v", value)
	}
	transitions, ok := families["test_quality_transitions_total"]
	if !ok || transitions.GetType() != dto.MetricType_COUNTER {
		t.Fatalf("expected transitions counter, got %v", transitions)
	}
	if value := transitions.GetMetric()[0].GetCounter().GetValue(); value != 2 {
		t.Fatalf("expected 2 transitions, got %v", value)
	}
	if _, ok := families["go_goroutines"]; ok {
		t.Fatalf("expected runtime collectors to stay disabled")
	}
}

func TestExporterPublishesControllerSnapshot(t *testing.T) {
	stats := quality.Stats{
		Tier:       quality.TierMedium,
		TargetFPS:  60,
		AverageFPS: 47.5,
		AutoAdjust: true,
		Telemetry:  &telemetry.MemorySample{HeapUsagePercent: 42},
		Streaming:  &quality.StreamingStats{Loaded: 12},
	}
	exporter, err := NewExporter(Config{Namespace: "test"}, &logging.Metrics{}, func() (quality.Stats, bool) {
		return stats, true
	})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	families := gather(t, exporter)

	checks := map[string]float64{
		"test_quality_average_fps":          47.5,
		"test_quality_target_fps":           60,
		"test_quality_auto_adjust":          1,
		"test_quality_hud_visible":          0,
		"test_telemetry_heap_usage_percent": 42,
		"test_streaming_loaded_assets":      12,
	}
	for name, want := range checks {
		family, ok := families[name]
		if !ok {
			t.Fatalf("expected metric %s", name)
		}
		if got := family.GetMetric()[0].GetGauge().GetValue(); got != want {
			t.Fatalf("expected %s=%v, got %v", name, want, got)
		}
	}
	if _, ok := families["test_physics_active_bodies"]; ok {
		t.Fatalf("expected physics gauge to be omitted without physics stats")
	}
	info := families["test_quality_tier_info"]
	if info == nil || info.GetMetric()[0].GetLabel()[0].GetValue() != "medium" {
		t.Fatalf("expected tier info labelled medium, got %v", info)
	}
}

func TestExporterHandlerServesExposition(t *testing.T) {
	metrics := &logging.Metrics{}
	metrics.TelemetryStore("lod_meshes", 7)
	exporter, err := NewExporter(Config{}, metrics, func() (quality.Stats, bool) { return quality.Stats{}, false })
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "prism_lod_meshes 7") {
		t.Fatalf("expected lod gauge in exposition, got %s", body)
	}
	if strings.Contains(string(body), "prism_quality_target_fps") {
		t.Fatalf("expected snapshot gauges to be skipped before the first snapshot")
	}
}
