package telemetry

import (
	"bytes"
	"log"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"prism/client/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("test_counter", 2)
	adapter.Store("test_counter", 5)
	adapter.Add("test_counter", 3)

	snapshot := metrics.Snapshot()
	if got := snapshot["test_counter"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}

func TestWrapZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WrapZap(zap.New(core).Sugar())
	logger.Printf("tier=%s", "high")

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "tier=high" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	provider, ok := logger.(interface{ StandardLogger() *log.Logger })
	if !ok || provider.StandardLogger() == nil {
		t.Fatalf("expected zap adapter to expose a standard logger")
	}

	WrapZap(nil).Printf("ignored")
}
