package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"prism/client/logging"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "quality.tier_changed",
		Tick:     7,
		Time:     time.Unix(100, 0).UTC(),
		Actor:    logging.EntityRef{ID: "quality", Kind: logging.EntityKindController},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryQuality,
		Payload:  map[string]any{"from": "high", "to": "medium"},
		TraceID:  "trace-1",
		Tier:     "medium",
		Version:  3,
	}
}

func TestConsoleSinkFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[quality.tier_changed]", "actor=controller:quality", "severity=warn", "trace=trace-1", `"to":"medium"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected console output to contain %q, got %q", want, out)
		}
	}
}

func TestJSONSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, logging.JSONConfig{})
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode line: %v", err)
	}
	if decoded["severity"] != "warn" {
		t.Fatalf("expected severity warn, got %v", decoded["severity"])
	}
	if decoded["traceId"] != "trace-1" {
		t.Fatalf("expected trace id, got %v", decoded["traceId"])
	}
	if decoded["tier"] != "medium" || decoded["version"] != float64(3) {
		t.Fatalf("expected bundle fields, got tier=%v version=%v", decoded["tier"], decoded["version"])
	}
}

func TestJSONSinkFlushesInBatches(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, logging.JSONConfig{MaxBatch: 2})
	sink.Write(sampleEvent())
	if buf.Len() != 0 {
		t.Fatalf("expected the first record to stay buffered")
	}
	sink.Write(sampleEvent())
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected a full batch to flush, got %d lines", lines)
	}
	sink.Write(sampleEvent())
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 || sink.Written() != 3 {
		t.Fatalf("expected close to flush the remainder, got %d lines", lines)
	}
}

func TestMemorySinkCopiesEvents(t *testing.T) {
	sink := NewMemorySink()
	event := sampleEvent().WithExtra("k", "v")
	sink.Write(event)
	event.Extra["k"] = "mutated"

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra["k"] != "v" {
		t.Fatalf("expected stored event to be isolated from caller mutation")
	}
	sink.Reset()
	if len(sink.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}

func TestBoundedMemorySinkKeepsRecentEvents(t *testing.T) {
	sink := NewBoundedMemorySink(2)
	for version := uint64(1); version <= 3; version++ {
		event := sampleEvent()
		event.Version = version
		if version == 3 {
			event.Type = "lod.generation_failed"
		}
		sink.Write(event)
	}
	events := sink.Events()
	if len(events) != 2 || events[0].Version != 2 || events[1].Version != 3 {
		t.Fatalf("expected the two newest events, got %+v", events)
	}
	if got := sink.OfType("quality.tier_changed"); len(got) != 1 || got[0].Version != 2 {
		t.Fatalf("unexpected type filter result: %+v", got)
	}
	if got := sink.ForBundle(3); len(got) != 1 || got[0].Type != "lod.generation_failed" {
		t.Fatalf("unexpected bundle filter result: %+v", got)
	}
}

func TestZapSinkMapsSeverity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZap(zap.New(core))

	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	debug := sampleEvent()
	debug.Severity = logging.SeverityDebug
	sink.Write(debug)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].Message != "quality.tier_changed" {
		t.Fatalf("unexpected first entry: %+v", entries[0].Entry)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %v", entries[1].Level)
	}
	fields := entries[0].ContextMap()
	if fields["traceId"] != "trace-1" || fields["category"] != logging.CategoryQuality {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestNilZapLoggerIsNoop(t *testing.T) {
	sink := NewZap(nil)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
