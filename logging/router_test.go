package logging

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRouterFiltersSeverityAndAppliesFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledSinks = nil
	cfg.MinimumSeverity = SeverityWarn
	cfg.Fields = map[string]any{"build": "test"}
	fixed := time.Unix(42, 0)

	sink := &recordingSink{}
	router, err := NewRouter(cfg, ClockFunc(func() time.Time { return fixed }), log.New(io.Discard, "", 0), map[string]Sink{"rec": sink})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	router.Publish(context.Background(), Event{Type: "debug.only", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Type: "kept", Severity: SeverityError})
	router.Publish(context.Background(), Event{Severity: SeverityError})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(events))
	}
	if events[0].Type != "kept" {
		t.Fatalf("expected kept event, got %s", events[0].Type)
	}
	if !events[0].Time.Equal(fixed) {
		t.Fatalf("expected router clock to stamp the event")
	}
	if events[0].Extra["build"] != "test" {
		t.Fatalf("expected default fields to be applied, got %+v", events[0].Extra)
	}
	if !sink.closed {
		t.Fatalf("expected sink to be closed")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected 1 event counted, got %d", stats.EventsTotal)
	}
}

func TestRouterHonoursEnabledSinks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"b"}
	a, b := &recordingSink{}, &recordingSink{}
	router, err := NewRouter(cfg, nil, log.New(io.Discard, "", 0), map[string]Sink{"a": a, "b": b})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}
	if router.Sink("a") != nil {
		t.Fatalf("expected sink a to be disabled")
	}
	router.Publish(context.Background(), Event{Type: "x", Severity: SeverityInfo})
	router.Close(context.Background())

	if len(a.snapshot()) != 0 || len(b.snapshot()) != 1 {
		t.Fatalf("expected only sink b to receive the event")
	}
}

func TestWithFieldsDoesNotOverrideExtra(t *testing.T) {
	var got Event
	pub := WithFields(PublisherFunc(func(_ context.Context, e Event) { got = e }), map[string]any{"tier": "high", "node": "a"})
	pub.Publish(context.Background(), Event{Type: "t", Extra: map[string]any{"tier": "low"}})
	if got.Extra["tier"] != "low" || got.Extra["node"] != "a" {
		t.Fatalf("unexpected extra: %+v", got.Extra)
	}
}

func TestMetricsAddAndStore(t *testing.T) {
	var m Metrics
	m.TelemetryAdd("a", 2)
	m.TelemetryStore("a", 5)
	m.TelemetryAdd("a", 3)
	m.TelemetryStore("b", 1)
	if got := m.Snapshot()["a"]; got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
	if keys := m.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRouterStampsBundleAndCountsCategories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledSinks = nil
	sink := &recordingSink{}
	var metrics Metrics
	router, err := NewRouter(cfg, nil, log.New(io.Discard, "", 0), map[string]Sink{"rec": sink}, WithCounters(&metrics))
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	router.Publish(context.Background(), Event{Type: "before", Severity: SeverityInfo, Category: CategoryLOD})
	router.SetBundle("medium", 4)
	router.Publish(context.Background(), Event{Type: "stamped", Severity: SeverityInfo, Category: CategoryLOD})
	router.Publish(context.Background(), Event{Type: "own", Severity: SeverityInfo, Category: CategoryQuality, Tier: "low", Version: 5})
	router.Close(context.Background())

	events := sink.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Tier != "" || events[1].Tier != "medium" || events[1].Version != 4 {
		t.Fatalf("expected only events after SetBundle to be stamped, got %+v", events[:2])
	}
	if events[2].Tier != "low" || events[2].Version != 5 {
		t.Fatalf("expected an event's own bundle to win, got %+v", events[2])
	}
	stats := router.Stats()
	if stats.ByCategory[CategoryLOD] != 2 || stats.ByCategory[CategoryQuality] != 1 {
		t.Fatalf("unexpected category counts: %+v", stats.ByCategory)
	}
	snapshot := metrics.Snapshot()
	if snapshot["logging_events_total"] != 3 || snapshot["logging_lod_events_total"] != 2 {
		t.Fatalf("unexpected counters: %+v", snapshot)
	}
}
