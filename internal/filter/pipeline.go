// Package filter smooths the tracked fingertip position.
//
// A Pipeline runs two stages per frame: a sliding-window median that drops
// single-frame spikes, then a constant-velocity Kalman filter that removes
// jitter. Despiking runs first so an outlier is never read by the Kalman
// filter as a fast real motion.
package filter

import (
	"fmt"
	"sync/atomic"
)

// Default output when no hand is detected: the center of the frame.
const (
	CenterX = 0.5
	CenterY = 0.5
)

// Sample is one raw fingertip observation in normalized [0, 1] coordinates.
type Sample struct {
	X       float64
	Y       float64
	Present bool
}

// Absent marks a frame without a detection.
var Absent = Sample{}

// At returns a present sample at (x, y).
func At(x, y float64) Sample {
	return Sample{X: x, Y: y, Present: true}
}

// AbsentPolicy selects what a Pipeline does with frames without a detection.
type AbsentPolicy string

const (
	// AbsentFreeze leaves window and estimator untouched.
	AbsentFreeze AbsentPolicy = "freeze"
	// AbsentPredict runs the Kalman predict step so velocity carries through
	// short dropouts.
	AbsentPredict AbsentPolicy = "predict"
)

// Config holds the pipeline tuning. It is copied on construction.
type Config struct {
	WindowSize        int
	Dt                float64
	ProcessNoise      float64
	MeasurementNoise  float64
	InitialCovariance float64
	AbsentPolicy      AbsentPolicy
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		WindowSize:        DefaultWindowSize,
		Dt:                1.0,
		ProcessNoise:      1e-4,
		MeasurementNoise:  0.01,
		InitialCovariance: 500.0,
		AbsentPolicy:      AbsentFreeze,
	}
}

// Validate checks that cfg can build a working pipeline.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", c.WindowSize)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	if c.ProcessNoise < 0 {
		return fmt.Errorf("process noise must be non-negative, got %f", c.ProcessNoise)
	}
	if c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement noise must be positive, got %f", c.MeasurementNoise)
	}
	if c.InitialCovariance < 0 {
		return fmt.Errorf("initial covariance must be non-negative, got %f", c.InitialCovariance)
	}
	if c.ProcessNoise == 0 && c.InitialCovariance == 0 {
		// zero gain: the estimator would never leave its initial state
		return fmt.Errorf("process noise and initial covariance cannot both be zero")
	}
	switch c.AbsentPolicy {
	case AbsentFreeze, AbsentPredict, "":
	default:
		return fmt.Errorf("unknown absent policy %q", c.AbsentPolicy)
	}
	return nil
}

// Pipeline despikes then smooths one tracked point. Each tracked session
// owns its own Pipeline.
//
// Filter and Reset must be called from a single goroutine. SetEnabled may be
// called from any goroutine.
type Pipeline struct {
	despike *Despiker
	kalman  *Kalman2D
	policy  AbsentPolicy
	enabled atomic.Bool
}

// NewPipeline creates an enabled Pipeline from cfg.
func NewPipeline(cfg Config) *Pipeline {
	policy := cfg.AbsentPolicy
	if policy == "" {
		policy = AbsentFreeze
	}

	p := &Pipeline{
		despike: NewDespiker(cfg.WindowSize),
		kalman: NewKalman2D(Kalman2DConfig{
			Dt:                cfg.Dt,
			ProcessNoisePos:   cfg.ProcessNoise,
			ProcessNoiseVel:   cfg.ProcessNoise,
			MeasurementNoiseX: cfg.MeasurementNoise,
			MeasurementNoiseY: cfg.MeasurementNoise,
			InitialCovariance: cfg.InitialCovariance,
		}),
		policy: policy,
	}
	p.enabled.Store(true)
	return p
}

// Filter returns the output position for one frame.
//
// Absent samples yield the frame center. During warm-up, and while smoothing
// is disabled, present samples are returned unchanged.
func (p *Pipeline) Filter(s Sample) (float64, float64) {
	if !s.Present {
		if p.policy == AbsentPredict && p.enabled.Load() && p.kalman.Seeded() {
			p.kalman.Predict()
		}
		return CenterX, CenterY
	}

	if !p.enabled.Load() {
		return s.X, s.Y
	}

	despiked, full := p.despike.Push(s)
	if !full {
		return s.X, s.Y
	}

	return p.kalman.Update(despiked.X, despiked.Y)
}

// SetEnabled turns smoothing on or off. Filter state is kept while disabled.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Enabled reports whether smoothing is on.
func (p *Pipeline) Enabled() bool {
	return p.enabled.Load()
}

// Policy returns the absent-sample policy in effect.
func (p *Pipeline) Policy() AbsentPolicy {
	return p.policy
}

// Kalman exposes the smoothing stage for diagnostics.
func (p *Pipeline) Kalman() *Kalman2D {
	return p.kalman
}

// Reset clears the window and the estimator.
func (p *Pipeline) Reset() {
	p.despike.Reset()
	p.kalman.Reset()
}
