package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"prism/client/logging"
)

// jsonRecord is one line of the JSON log. Tier and version come first so a
// line can be attributed to a settings bundle without decoding the payload.
type jsonRecord struct {
	Time     string              `json:"time"`
	Tier     string              `json:"tier,omitempty"`
	Version  uint64              `json:"version,omitempty"`
	Type     logging.EventType   `json:"type"`
	Severity string              `json:"severity"`
	Category string              `json:"category,omitempty"`
	TraceID  string              `json:"traceId,omitempty"`
	Tick     uint64              `json:"tick,omitempty"`
	Actor    logging.EntityRef   `json:"actor"`
	Targets  []logging.EntityRef `json:"targets,omitempty"`
	Payload  any                 `json:"payload,omitempty"`
	Extra    map[string]any      `json:"extra,omitempty"`
}

// JSON writes newline-delimited records. Output is flushed every MaxBatch
// records and every FlushInterval; with neither set each record is flushed
// as it is written.
type JSON struct {
	mu       sync.Mutex
	out      *bufio.Writer
	enc      *json.Encoder
	batch    int
	pending  int
	written  uint64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewJSON(w io.Writer, cfg logging.JSONConfig) *JSON {
	if w == nil {
		w = io.Discard
	}
	out := bufio.NewWriter(w)
	sink := &JSON{out: out, enc: json.NewEncoder(out), batch: cfg.MaxBatch, stop: make(chan struct{})}
	if cfg.MaxBatch <= 0 && cfg.FlushInterval <= 0 {
		sink.batch = 1
	}
	if cfg.FlushInterval > 0 {
		go sink.flushEvery(cfg.FlushInterval)
	}
	return sink
}

// Write satisfies logging.Sink.
func (s *JSON) Write(event logging.Event) error {
	record := jsonRecord{
		Time:     event.Time.UTC().Format(time.RFC3339Nano),
		Tier:     event.Tier,
		Version:  event.Version,
		Type:     event.Type,
		Severity: event.Severity.String(),
		Category: event.Category,
		TraceID:  event.TraceID,
		Tick:     event.Tick,
		Actor:    event.Actor,
		Targets:  event.Targets,
		Payload:  event.Payload,
		Extra:    event.Extra,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record); err != nil {
		return err
	}
	s.written++
	s.pending++
	if s.batch > 0 && s.pending >= s.batch {
		s.pending = 0
		return s.out.Flush()
	}
	return nil
}

// Written reports how many records have been encoded.
func (s *JSON) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close stops the flush timer and flushes what is buffered.
func (s *JSON) Close(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = 0
	return s.out.Flush()
}

func (s *JSON) flushEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.pending > 0 {
				s.pending = 0
				s.out.Flush()
			}
			s.mu.Unlock()
		}
	}
}
