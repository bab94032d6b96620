package sim

import "sync"

const (
	commandBufferOccupancyMetricKey = "loop_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "loop_command_buffer_overflow_total"
	commandBufferCoalescedMetricKey = "loop_command_buffer_coalesced_total"
)

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// CommandBuffer stages host commands for the next step in a fixed-size ring.
// It is safe for concurrent producers and a single consumer.
//
// Quality and anchor requests describe a desired state, so a newer one
// replaces the staged request of the same type in place instead of taking a
// slot. A replaced quality request keeps the staged autoAdjust toggle unless
// the newer one sets its own.
type CommandBuffer struct {
	mu      sync.Mutex
	ring    []Command
	start   int
	size    int
	metrics telemetryMetrics
}

func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	return &CommandBuffer{ring: make([]Command, max(capacity, 1)), metrics: metrics}
}

func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.ring)
}

// Push stages cmd, returning false when the buffer is full and cmd cannot be
// coalesced with a staged command.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if coalesces(cmd.Type) {
		for i := 0; i < b.size; i++ {
			slot := &b.ring[(b.start+i)%len(b.ring)]
			if slot.Type != cmd.Type {
				continue
			}
			if cmd.Type == CommandSetQuality && cmd.Quality != nil && cmd.Quality.AutoAdjust == nil &&
				slot.Quality != nil && slot.Quality.AutoAdjust != nil {
				merged := *cmd.Quality
				merged.AutoAdjust = slot.Quality.AutoAdjust
				cmd.Quality = &merged
			}
			*slot = cmd
			b.add(commandBufferCoalescedMetricKey, 1)
			return true
		}
	}

	if b.size == len(b.ring) {
		b.add(commandBufferOverflowMetricKey, 1)
		return false
	}
	b.ring[(b.start+b.size)%len(b.ring)] = cmd
	b.size++
	b.store(commandBufferOccupancyMetricKey, uint64(b.size))
	return true
}

// Drain returns the staged commands in arrival order and empties the buffer.
// A coalesced command keeps the position of the one it replaced.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return nil
	}
	out := make([]Command, 0, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.start + i) % len(b.ring)
		out = append(out, b.ring[idx])
		b.ring[idx] = Command{}
	}
	b.start = (b.start + b.size) % len(b.ring)
	b.size = 0
	b.store(commandBufferOccupancyMetricKey, 0)
	return out
}

func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func coalesces(t CommandType) bool {
	return t == CommandSetQuality || t == CommandMoveAnchor
}

func (b *CommandBuffer) add(key string, delta uint64) {
	if b.metrics != nil {
		b.metrics.Add(key, delta)
	}
}

func (b *CommandBuffer) store(key string, value uint64) {
	if b.metrics != nil {
		b.metrics.Store(key, value)
	}
}
