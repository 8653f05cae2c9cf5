package filter

import (
	"github.com/montanaflynn/stats"
)

// DefaultWindowSize is the number of samples the despiker takes the median over.
const DefaultWindowSize = 3

// Despiker removes single-frame outliers with a sliding-window median per axis.
//
// Until the window is full, Push returns its input unchanged so the pipeline
// keeps producing output during startup.
type Despiker struct {
	xs *Window
	ys *Window
}

// NewDespiker creates a Despiker with the given window size for both axes.
func NewDespiker(size int) *Despiker {
	return &Despiker{
		xs: NewWindow(size),
		ys: NewWindow(size),
	}
}

// Push adds a sample to both windows. It returns the per-axis median and true
// once the window is full, or the raw sample and false during warm-up.
func (d *Despiker) Push(s Sample) (Sample, bool) {
	d.xs.Push(s.X)
	d.ys.Push(s.Y)

	if !d.xs.Full() {
		return s, false
	}

	mx, errX := stats.Median(stats.Float64Data(d.xs.Values()))
	my, errY := stats.Median(stats.Float64Data(d.ys.Values()))
	if errX != nil || errY != nil {
		// only reachable with an empty window
		return s, false
	}

	return Sample{X: mx, Y: my, Present: true}, true
}

// Size returns the configured window size.
func (d *Despiker) Size() int {
	return d.xs.Cap()
}

// Reset clears both windows, restarting warm-up.
func (d *Despiker) Reset() {
	d.xs.Reset()
	d.ys.Reset()
}
