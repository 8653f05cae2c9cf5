package filter

import (
	"gonum.org/v1/gonum/mat"
)

// Kalman2DConfig holds the tuning of the [x, y, vx, vy] filter.
type Kalman2DConfig struct {
	Dt float64

	ProcessNoisePos float64
	ProcessNoiseVel float64

	MeasurementNoiseX float64
	MeasurementNoiseY float64

	InitialX          float64
	InitialY          float64
	InitialCovariance float64
}

// DefaultKalman2DConfig returns a filter that trusts its first measurements
// almost completely (P0 = 500*I) and then settles.
func DefaultKalman2DConfig() Kalman2DConfig {
	return Kalman2DConfig{
		Dt:                1.0,
		ProcessNoisePos:   0.1,
		ProcessNoiseVel:   0.1,
		MeasurementNoiseX: 0.01,
		MeasurementNoiseY: 0.01,
		InitialCovariance: 500.0,
	}
}

// Kalman2D tracks a point in the plane with a shared constant-velocity
// model. State layout is [x, y, vx, vy].
//
// This type is not concurrency safe.
type Kalman2D struct {
	est *estimator
	z   *mat.VecDense
}

// NewKalman2D creates a planar filter from cfg.
func NewKalman2D(cfg Kalman2DConfig) *Kalman2D {
	dt := cfg.Dt
	if dt <= 0 {
		dt = 1.0
	}

	p0 := identity(4)
	p0.Scale(cfg.InitialCovariance, p0)

	return &Kalman2D{
		est: newEstimator(
			constantVelocity(2, dt),
			diagonal(cfg.ProcessNoisePos, cfg.ProcessNoisePos, cfg.ProcessNoiseVel, cfg.ProcessNoiseVel),
			positionObserver(2),
			diagonal(cfg.MeasurementNoiseX, cfg.MeasurementNoiseY),
			mat.NewVecDense(4, []float64{cfg.InitialX, cfg.InitialY, 0, 0}),
			p0,
		),
		z: mat.NewVecDense(2, nil),
	}
}

// Update runs predict then correct with measurement (x, y) and returns the
// smoothed position. If the innovation covariance is degenerate the
// predicted position is returned.
func (k *Kalman2D) Update(x, y float64) (float64, float64) {
	k.est.predict()
	k.z.SetVec(0, x)
	k.z.SetVec(1, y)
	k.est.correct(k.z)
	return k.est.position(0), k.est.position(1)
}

// Predict advances the filter one step without a measurement and returns the
// predicted position.
func (k *Kalman2D) Predict() (float64, float64) {
	k.est.predict()
	return k.est.position(0), k.est.position(1)
}

// Position returns the current position estimate.
func (k *Kalman2D) Position() (float64, float64) {
	return k.est.position(0), k.est.position(1)
}

// Velocity returns the current velocity estimate.
func (k *Kalman2D) Velocity() (float64, float64) {
	return k.est.velocity(0), k.est.velocity(1)
}

// Covariance returns a copy of the 4x4 covariance.
func (k *Kalman2D) Covariance() *mat.Dense {
	return k.est.covariance()
}

// Seeded reports whether at least one measurement has been folded in since
// construction or the last Reset.
func (k *Kalman2D) Seeded() bool {
	return k.est.corrections > 0
}

// SkippedCorrections returns how many updates kept the predicted state
// because the innovation covariance was degenerate, since construction or the
// last Reset.
func (k *Kalman2D) SkippedCorrections() int {
	return k.est.skipped
}

// Reset restores the initial state and covariance and clears the counters.
func (k *Kalman2D) Reset() {
	k.est.reset()
}
