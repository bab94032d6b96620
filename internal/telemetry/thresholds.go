package telemetry

import "fmt"

// Severity grades a Warning.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metric names a classified counter.
type Metric string

const (
	MetricHeapUsage Metric = "heap_usage_percent"
	MetricDrawCalls Metric = "draw_calls"
	MetricVertices  Metric = "active_vertices_millions"
)

// ThresholdPair holds the warning and critical levels of one metric. A
// value at or above a level trips it.
type ThresholdPair struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Thresholds configures classification for every metric.
type Thresholds struct {
	HeapUsagePercent ThresholdPair `json:"heapUsagePercent"`
	DrawCalls        ThresholdPair `json:"drawCalls"`
	VerticesMillions ThresholdPair `json:"verticesMillions"`
}

// DefaultThresholds returns the reference threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeapUsagePercent: ThresholdPair{Warning: 70, Critical: 90},
		DrawCalls:        ThresholdPair{Warning: 1000, Critical: 2000},
		VerticesMillions: ThresholdPair{Warning: 1, Critical: 2},
	}
}

// Warning is an ephemeral classification result.
type Warning struct {
	Severity  Severity     `json:"severity"`
	Metric    Metric       `json:"metric"`
	Message   string       `json:"message"`
	Value     float64      `json:"value"`
	Threshold float64      `json:"threshold"`
	Sample    MemorySample `json:"sample"`
}

// Critical reports whether the warning has critical severity.
func (w Warning) Critical() bool {
	return w.Severity == SeverityCritical
}

// Classify evaluates each metric of sample independently and returns zero or
// more warnings. A metric past its critical level yields only the critical
// warning.
func Classify(sample MemorySample, thresholds Thresholds) []Warning {
	var warnings []Warning
	check := func(metric Metric, value float64, pair ThresholdPair, format string) {
		severity, threshold, ok := grade(value, pair)
		if !ok {
			return
		}
		warnings = append(warnings, Warning{
			Severity:  severity,
			Metric:    metric,
			Message:   fmt.Sprintf(format, value, severity, threshold),
			Value:     value,
			Threshold: threshold,
			Sample:    sample,
		})
	}
	check(MetricHeapUsage, sample.HeapUsagePercent, thresholds.HeapUsagePercent, "heap usage %.1f%% exceeds %s threshold %.1f%%")
	check(MetricDrawCalls, float64(sample.DrawCalls), thresholds.DrawCalls, "draw calls %.0f exceed %s threshold %.0f")
	check(MetricVertices, sample.VerticesMillions(), thresholds.VerticesMillions, "active vertices %.2fM exceed %s threshold %.2fM")
	return warnings
}

func grade(value float64, pair ThresholdPair) (Severity, float64, bool) {
	if pair.Critical > 0 && value >= pair.Critical {
		return SeverityCritical, pair.Critical, true
	}
	if pair.Warning > 0 && value >= pair.Warning {
		return SeverityWarning, pair.Warning, true
	}
	return "", 0, false
}
