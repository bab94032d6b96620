package sinks

import (
	"context"
	"sync"

	"prism/client/logging"
)

// MemorySink keeps routed events in memory, oldest first. With a limit it
// keeps only the most recent events.
type MemorySink struct {
	mu     sync.RWMutex
	limit  int
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// NewBoundedMemorySink keeps at most limit events.
func NewBoundedMemorySink(limit int) *MemorySink {
	if limit < 0 {
		limit = 0
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Write(event logging.Event) error {
	event.Targets = append([]logging.EntityRef(nil), event.Targets...)
	if event.Extra != nil {
		extra := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			extra[k] = v
		}
		event.Extra = extra
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append(s.events[:0], s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

func (s *MemorySink) Events() []logging.Event {
	return s.filter(func(logging.Event) bool { return true })
}

// OfType returns the stored events of type t.
func (s *MemorySink) OfType(t logging.EventType) []logging.Event {
	return s.filter(func(e logging.Event) bool { return e.Type == t })
}

// ForBundle returns the events published while version was in force.
func (s *MemorySink) ForBundle(version uint64) []logging.Event {
	return s.filter(func(e logging.Event) bool { return e.Version == version })
}

func (s *MemorySink) filter(keep func(logging.Event) bool) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []logging.Event
	for _, event := range s.events {
		if keep(event) {
			matched = append(matched, event)
		}
	}
	return matched
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
