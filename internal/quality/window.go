package quality

// FPSWindow keeps the most recent frame-rate samples.
type FPSWindow struct {
	samples []float64
	size    int
}

// NewFPSWindow constructs a window holding at most size samples.
func NewFPSWindow(size int) *FPSWindow {
	if size < 1 {
		size = 1
	}
	return &FPSWindow{samples: make([]float64, 0, size), size: size}
}

// Push appends fps, dropping the oldest sample when full.
func (w *FPSWindow) Push(fps float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, fps)
}

// Len reports the number of samples held.
func (w *FPSWindow) Len() int {
	return len(w.samples)
}

// Average returns the mean of every sample, or 0 when empty.
func (w *FPSWindow) Average() float64 {
	return mean(w.samples)
}

// Recent returns the mean of the newest n samples and whether n were
// available.
func (w *FPSWindow) Recent(n int) (float64, bool) {
	if n < 1 || len(w.samples) < n {
		return 0, false
	}
	return mean(w.samples[len(w.samples)-n:]), true
}

// Reset drops every sample.
func (w *FPSWindow) Reset() {
	w.samples = w.samples[:0]
}

// Samples returns a copy, oldest first.
func (w *FPSWindow) Samples() []float64 {
	return append([]float64(nil), w.samples...)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
