package filter

// Window is a fixed-capacity FIFO of float64 values backed by a ring buffer.
// Once full, each Push overwrites the oldest value.
//
// This type is not concurrency safe.
type Window struct {
	values []float64
	next   int
	count  int
}

// NewWindow creates a Window holding at most capacity values.
// Capacities below 1 are raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{values: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the window is full.
func (w *Window) Push(v float64) {
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
	if w.count < len(w.values) {
		w.count++
	}
}

// Len returns the number of values currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the fixed capacity.
func (w *Window) Cap() int {
	return len(w.values)
}

// Full reports whether the window holds Cap values.
func (w *Window) Full() bool {
	return w.count == len(w.values)
}

// Values returns a copy of the held values, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	start := (w.next - w.count + len(w.values)) % len(w.values)
	for i := 0; i < w.count; i++ {
		out[i] = w.values[(start+i)%len(w.values)]
	}
	return out
}

// Reset empties the window without releasing its storage.
func (w *Window) Reset() {
	for i := range w.values {
		w.values[i] = 0
	}
	w.next = 0
	w.count = 0
}
