package observability

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prism/client/internal/quality"
	"prism/client/logging"
)

// StatsFunc returns the latest controller snapshot. It is called from the
// scrape goroutine, so it must not touch the core directly.
type StatsFunc func() (quality.Stats, bool)

// Exporter publishes the keyed telemetry metrics and the controller snapshot
// to Prometheus. Keys ending in _total are exported as counters, everything
// else as gauges.
type Exporter struct {
	namespace string
	metrics   *logging.Metrics
	stats     StatsFunc
	registry  *prometheus.Registry

	averageFPS    *prometheus.Desc
	targetFPS     *prometheus.Desc
	autoAdjust    *prometheus.Desc
	hudVisible    *prometheus.Desc
	heapPercent   *prometheus.Desc
	tierInfo      *prometheus.Desc
	streamLoaded  *prometheus.Desc
	physicsBodies *prometheus.Desc
}

// NewExporter registers an exporter on a fresh registry.
func NewExporter(cfg Config, metrics *logging.Metrics, stats StatsFunc) (*Exporter, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultConfig().Namespace
	}
	e := &Exporter{
		namespace: namespace,
		metrics:   metrics,
		stats:     stats,
		registry:  prometheus.NewRegistry(),

		averageFPS:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "quality", "average_fps"), "Average frame rate over the evaluation window.", nil, nil),
		targetFPS:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "quality", "target_fps"), "Configured frame-rate target.", nil, nil),
		autoAdjust:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "quality", "auto_adjust"), "Whether automatic tier changes are enabled.", nil, nil),
		hudVisible:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "quality", "hud_visible"), "Whether the performance HUD is shown.", nil, nil),
		heapPercent:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "telemetry", "heap_usage_percent"), "Heap usage as a percentage of the limit.", nil, nil),
		tierInfo:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "quality", "tier_info"), "Current quality tier.", []string{"tier"}, nil),
		streamLoaded:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "streaming", "loaded_assets"), "Assets currently resident.", nil, nil),
		physicsBodies: prometheus.NewDesc(prometheus.BuildFQName(namespace, "physics", "active_bodies"), "Physics bodies currently simulated.", nil, nil),
	}
	if err := e.registry.Register(e); err != nil {
		return nil, err
	}
	if cfg.GoCollectors {
		if err := e.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := e.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry exposes the registry backing the exporter.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Describe implements prometheus.Collector. The keyed metrics are only known
// at scrape time, which makes this an unchecked collector.
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snapshot := e.metrics.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := snapshot[key]
		valueType := prometheus.GaugeValue
		if strings.HasSuffix(key, "_total") {
			valueType = prometheus.CounterValue
		}
		desc := prometheus.NewDesc(prometheus.BuildFQName(e.namespace, "", sanitize(key)), "Client telemetry value "+key+".", nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, valueType, float64(value))
	}

	if e.stats == nil {
		return
	}
	stats, ok := e.stats()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(e.averageFPS, prometheus.GaugeValue, stats.AverageFPS)
	ch <- prometheus.MustNewConstMetric(e.targetFPS, prometheus.GaugeValue, stats.TargetFPS)
	ch <- prometheus.MustNewConstMetric(e.autoAdjust, prometheus.GaugeValue, boolValue(stats.AutoAdjust))
	ch <- prometheus.MustNewConstMetric(e.hudVisible, prometheus.GaugeValue, boolValue(stats.HUDVisible))
	if stats.Tier.Valid() {
		ch <- prometheus.MustNewConstMetric(e.tierInfo, prometheus.GaugeValue, 1, stats.Tier.String())
	}
	if stats.Telemetry != nil {
		ch <- prometheus.MustNewConstMetric(e.heapPercent, prometheus.GaugeValue, stats.Telemetry.HeapUsagePercent)
	}
	if stats.Streaming != nil {
		ch <- prometheus.MustNewConstMetric(e.streamLoaded, prometheus.GaugeValue, float64(stats.Streaming.Loaded))
	}
	if stats.Physics != nil {
		ch <- prometheus.MustNewConstMetric(e.physicsBodies, prometheus.GaugeValue, float64(stats.Physics.Active))
	}
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
