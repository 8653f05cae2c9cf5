package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// Step is one scripted Detect result.
type Step struct {
	Hands []HandLandmarks
	Err   error
}

// MockDetector is a test implementation of the Detector interface that
// replays a script of results, one per Detect call. Once the script is
// exhausted it reports no hands.
type MockDetector struct {
	mu         sync.Mutex
	script     []Step
	calls      int
	timestamps []int64
	closes     int
	closeErr   error
}

// NewMockDetector creates a MockDetector replaying steps in order.
func NewMockDetector(steps ...Step) *MockDetector {
	return &MockDetector{script: steps}
}

// Append adds steps to the end of the script.
func (m *MockDetector) Append(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
}

// SetCloseError sets the error returned by Close.
func (m *MockDetector) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Detect returns the next scripted step.
func (m *MockDetector) Detect(frame *gocv.Mat, timestampMs int64) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timestamps = append(m.timestamps, timestampMs)
	i := m.calls
	m.calls++

	if i >= len(m.script) {
		return nil, nil
	}
	step := m.script[i]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Hands, nil
}

// Close records the call.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return m.closeErr
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closes returns how many times Close was called.
func (m *MockDetector) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Timestamps returns the timestamps passed to Detect, in call order.
func (m *MockDetector) Timestamps() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.timestamps))
	copy(out, m.timestamps)
	return out
}

// Hand wraps h as a single-hand step.
func Hand(h HandLandmarks) Step {
	return Step{Hands: []HandLandmarks{h}}
}

// NoHand is a step with no detection.
func NoHand() Step {
	return Step{}
}

// PointingLandmarks returns a right hand pointing with the index fingertip at
// (x, y) and the thumb tucked well away from it.
func PointingLandmarks(x, y float64) HandLandmarks {
	lm := baseHand(x, y)
	lm.Points[ThumbIP] = Point3D{X: x + 0.10, Y: y + 0.22, Z: 0.0}
	lm.Points[ThumbTip] = Point3D{X: x + 0.08, Y: y + 0.18, Z: 0.0}
	return lm
}

// PinchLandmarks returns a right hand with the thumb tip touching the index
// fingertip at (x, y).
func PinchLandmarks(x, y float64) HandLandmarks {
	lm := baseHand(x, y)
	lm.Points[ThumbIP] = Point3D{X: x + 0.04, Y: y + 0.05, Z: 0.0}
	lm.Points[ThumbTip] = Point3D{X: x + 0.01, Y: y + 0.01, Z: 0.0}
	return lm
}

// baseHand lays out an upright right hand whose index tip sits at (x, y).
func baseHand(x, y float64) HandLandmarks {
	lm := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	lm.Points[Wrist] = Point3D{X: x - 0.02, Y: y + 0.45, Z: 0.0}

	lm.Points[ThumbCMC] = Point3D{X: x + 0.03, Y: y + 0.40, Z: 0.0}
	lm.Points[ThumbMCP] = Point3D{X: x + 0.08, Y: y + 0.33, Z: 0.0}

	lm.Points[IndexMCP] = Point3D{X: x - 0.03, Y: y + 0.33, Z: 0.0}
	lm.Points[IndexPIP] = Point3D{X: x - 0.01, Y: y + 0.20, Z: 0.0}
	lm.Points[IndexDIP] = Point3D{X: x, Y: y + 0.10, Z: 0.0}
	lm.Points[IndexTip] = Point3D{X: x, Y: y, Z: 0.0}

	// middle, ring and pinky curled into the palm
	for i, mcp := range []int{MiddleMCP, RingMCP, PinkyMCP} {
		dx := -0.07 - 0.04*float64(i)
		lm.Points[mcp] = Point3D{X: x + dx, Y: y + 0.34, Z: -0.02}
		lm.Points[mcp+1] = Point3D{X: x + dx, Y: y + 0.30, Z: -0.05}
		lm.Points[mcp+2] = Point3D{X: x + dx + 0.01, Y: y + 0.34, Z: -0.04}
		lm.Points[mcp+3] = Point3D{X: x + dx + 0.02, Y: y + 0.38, Z: -0.02}
	}

	return lm
}
