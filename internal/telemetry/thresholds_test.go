package telemetry

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	thresholds := Thresholds{
		HeapUsagePercent: ThresholdPair{Warning: 70, Critical: 90},
		DrawCalls:        ThresholdPair{Warning: 1000, Critical: 2000},
		VerticesMillions: ThresholdPair{Warning: 1, Critical: 2},
	}

	tests := []struct {
		name   string
		sample MemorySample
		want   []Warning
	}{
		{
			name:   "quiet",
			sample: MemorySample{HeapUsagePercent: 40, DrawCalls: 100, ActiveVertices: 10_000},
		},
		{
			name:   "heap critical only",
			sample: MemorySample{HeapUsagePercent: 95},
			want:   []Warning{{Severity: SeverityCritical, Metric: MetricHeapUsage, Threshold: 90}},
		},
		{
			name:   "heap warning at boundary",
			sample: MemorySample{HeapUsagePercent: 70},
			want:   []Warning{{Severity: SeverityWarning, Metric: MetricHeapUsage, Threshold: 70}},
		},
		{
			name:   "draw calls critical and heap warning",
			sample: MemorySample{HeapUsagePercent: 75, DrawCalls: 2500},
			want: []Warning{
				{Severity: SeverityWarning, Metric: MetricHeapUsage, Threshold: 70},
				{Severity: SeverityCritical, Metric: MetricDrawCalls, Threshold: 2000},
			},
		},
		{
			name:   "vertices in millions",
			sample: MemorySample{ActiveVertices: 1_500_000},
			want:   []Warning{{Severity: SeverityWarning, Metric: MetricVertices, Threshold: 1}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.sample, thresholds)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d warnings, got %d: %+v", len(tc.want), len(got), got)
			}
			for i := range got {
				if got[i].Severity != tc.want[i].Severity || got[i].Metric != tc.want[i].Metric || got[i].Threshold != tc.want[i].Threshold {
					t.Fatalf("warning %d: expected %+v, got %+v", i, tc.want[i], got[i])
				}
				if got[i].Sample != tc.sample {
					t.Fatalf("expected warning to carry its originating sample")
				}
			}
		})
	}
}

func TestClassifyMessageNamesSeverity(t *testing.T) {
	warnings := Classify(MemorySample{HeapUsagePercent: 95}, DefaultThresholds())
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "critical") {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
}

func TestClassifyIgnoresZeroThresholds(t *testing.T) {
	if got := Classify(MemorySample{HeapUsagePercent: 99, DrawCalls: 1 << 20}, Thresholds{}); len(got) != 0 {
		t.Fatalf("expected unset thresholds never to trip, got %+v", got)
	}
}

func TestSuggest(t *testing.T) {
	thresholds := DefaultThresholds()
	if hints := Suggest(MemorySample{ActiveMeshes: 10, ActiveTextures: 10}, thresholds); len(hints) != 0 {
		t.Fatalf("expected no hints for a quiet sample, got %v", hints)
	}
	hints := Suggest(MemorySample{
		HeapUsagePercent:   85,
		DrawCalls:          1200,
		DrawCallsEstimated: true,
		ActiveVertices:     3_000_000,
		ActiveMeshes:       2,
		ActiveTextures:     20,
	}, thresholds)
	if len(hints) != 4 {
		t.Fatalf("expected 4 hints, got %v", hints)
	}
	if !strings.Contains(hints[1], "estimated") {
		t.Fatalf("expected the draw-call hint to mention the estimate, got %q", hints[1])
	}
}
