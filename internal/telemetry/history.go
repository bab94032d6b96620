package telemetry

// History is a fixed-capacity ring of samples. The oldest sample is evicted
// when a push would exceed the capacity.
type History struct {
	data  []MemorySample
	head  int
	count int
}

// NewHistory constructs a ring holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{data: make([]MemorySample, capacity)}
}

// Capacity reports the maximum number of samples retained.
func (h *History) Capacity() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// Len reports the number of samples retained.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.count
}

// Push appends sample, evicting the oldest one when full.
func (h *History) Push(sample MemorySample) {
	if h == nil {
		return
	}
	idx := (h.head + h.count) % len(h.data)
	h.data[idx] = sample
	if h.count == len(h.data) {
		h.head = (h.head + 1) % len(h.data)
		return
	}
	h.count++
}

// Latest returns the newest sample.
func (h *History) Latest() (MemorySample, bool) {
	if h == nil || h.count == 0 {
		return MemorySample{}, false
	}
	idx := (h.head + h.count - 1) % len(h.data)
	return h.data[idx], true
}

// Samples returns a copy of the retained samples, oldest first.
func (h *History) Samples() []MemorySample {
	if h == nil || h.count == 0 {
		return nil
	}
	samples := make([]MemorySample, h.count)
	for i := 0; i < h.count; i++ {
		samples[i] = h.data[(h.head+i)%len(h.data)]
	}
	return samples
}
