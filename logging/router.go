package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives routed events on its own goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Counters receives the router's event accounting. *Metrics satisfies it.
type Counters interface {
	TelemetryAdd(key string, delta uint64)
}

const (
	eventsMetricKey  = "logging_events_total"
	droppedMetricKey = "logging_events_dropped_total"
)

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithCounters mirrors the router's accounting into c, one counter per
// category plus totals.
func WithCounters(c Counters) RouterOption {
	return func(r *Router) { r.counters = c }
}

type bundleStamp struct {
	tier    string
	version uint64
}

// Router fans published events out to the enabled sinks. Publish never blocks
// the simulation thread: when the queue is full the event is dropped and
// counted.
type Router struct {
	cfg         Config
	clock       Clock
	fallback    *log.Logger
	counters    Counters
	minSeverity Severity
	fields      map[string]any

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	bundle  atomic.Pointer[bundleStamp]

	mu         sync.Mutex
	byCategory map[string]uint64

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	nextDropLog  atomic.Int64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	ByCategory   map[string]uint64
}

// NewRouter starts the dispatch goroutine and one worker per enabled sink.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink, opts ...RouterOption) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().BufferSize
	}
	r := &Router{
		cfg:         cfg,
		clock:       clock,
		fallback:    fallback,
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		queue:       make(chan Event, queueSize),
		stop:        make(chan struct{}),
		byCategory:  make(map[string]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	backlog := min(max(queueSize, 32), 1024)
	for _, named := range cfg.selectSinks(sinks) {
		r.workers = append(r.workers, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, backlog),
			fallback: fallback,
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, worker := range r.workers {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(worker)
	}
	return r, nil
}

// SetBundle records the settings bundle in force. Events published afterwards
// without their own tier are stamped with it.
func (r *Router) SetBundle(tier string, version uint64) {
	if r == nil {
		return
	}
	r.bundle.Store(&bundleStamp{tier: tier, version: version})
}

// Publish implements Publisher.
func (r *Router) Publish(_ context.Context, event Event) {
	if r == nil || event.Type == "" || r.closed.Load() {
		return
	}
	if event.Tier == "" {
		if stamp := r.bundle.Load(); stamp != nil {
			event.Tier = stamp.tier
			event.Version = stamp.version
		}
	}
	select {
	case r.queue <- event:
	default:
		r.dropped(event)
	}
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, worker := range r.workers {
			close(worker.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.fields) > 0 {
		event = cloneForFields(event)
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(r.fields))
		}
		for k, v := range r.fields {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}
	r.count(event.Category)
	for _, worker := range r.workers {
		worker.enqueue(cloneForFields(event))
	}
}

func (r *Router) count(category string) {
	r.eventsTotal.Add(1)
	if category != "" {
		r.mu.Lock()
		r.byCategory[category]++
		r.mu.Unlock()
	}
	if r.counters == nil {
		return
	}
	r.counters.TelemetryAdd(eventsMetricKey, 1)
	if category != "" {
		r.counters.TelemetryAdd("logging_"+category+"_events_total", 1)
	}
}

func (r *Router) dropped(event Event) {
	r.droppedTotal.Add(1)
	if r.counters != nil {
		r.counters.TelemetryAdd(droppedMetricKey, 1)
	}
	interval := r.cfg.DropWarnInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := r.clock.Now().UnixNano()
	next := r.nextDropLog.Load()
	if now >= next && r.nextDropLog.CompareAndSwap(next, now+interval.Nanoseconds()) {
		r.fallback.Printf("dropping event type=%s tier=%s", event.Type, event.Tier)
	}
}

// Close stops routing, drains the queue into the sinks and closes them. Only
// the first call does the work; later calls wait for ctx.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.stop)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, worker := range r.workers {
		if err := worker.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	byCategory := make(map[string]uint64, len(r.byCategory))
	for k, v := range r.byCategory {
		byCategory[k] = v
	}
	r.mu.Unlock()
	return RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
		ByCategory:   byCategory,
	}
}

func (r *Router) Sink(name string) Sink {
	for _, worker := range r.workers {
		if worker.name == name {
			return worker.sink
		}
	}
	return nil
}

// sinkWorker feeds one sink. After a failed write it backs off exponentially,
// up to 32s, before the next attempt.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	failures int
	retryAt  time.Time
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- event:
	default:
		w.fallback.Printf("sink %s backlog full, dropping event type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if wait := time.Until(w.retryAt); w.failures > 0 && wait > 0 {
			time.Sleep(wait)
		}
		err := w.sink.Write(event)
		if err == nil {
			w.failures = 0
			continue
		}
		w.failures++
		delay := time.Duration(1<<min(w.failures, 5)) * time.Second
		w.retryAt = time.Now().Add(delay)
		w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, delay)
	}
}
