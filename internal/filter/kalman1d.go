package filter

import (
	"gonum.org/v1/gonum/mat"
)

// Kalman1DConfig holds the tuning of a scalar constant-velocity filter.
type Kalman1DConfig struct {
	// Dt is the time step assumed between updates (default 1.0).
	Dt float64

	// ProcessNoisePos and ProcessNoiseVel scale the diagonal of Q.
	ProcessNoisePos float64
	ProcessNoiseVel float64

	// MeasurementNoise is R.
	MeasurementNoise float64

	// InitialPosition seeds the position estimate; velocity starts at zero.
	InitialPosition float64

	// InitialCovariance scales the identity used as P0.
	InitialCovariance float64
}

// DefaultKalman1DConfig returns defaults tuned for normalized screen coordinates.
func DefaultKalman1DConfig() Kalman1DConfig {
	return Kalman1DConfig{
		Dt:                1.0,
		ProcessNoisePos:   1e-5,
		ProcessNoiseVel:   1e-5,
		MeasurementNoise:  1e-3,
		InitialPosition:   0.5,
		InitialCovariance: 1.0,
	}
}

// Kalman1D estimates position and velocity along one axis.
//
// This type is not concurrency safe.
type Kalman1D struct {
	est *estimator
	z   *mat.VecDense
}

// NewKalman1D creates a scalar filter from cfg.
func NewKalman1D(cfg Kalman1DConfig) *Kalman1D {
	dt := cfg.Dt
	if dt <= 0 {
		dt = 1.0
	}

	p0 := identity(2)
	p0.Scale(cfg.InitialCovariance, p0)

	return &Kalman1D{
		est: newEstimator(
			constantVelocity(1, dt),
			diagonal(cfg.ProcessNoisePos, cfg.ProcessNoiseVel),
			positionObserver(1),
			diagonal(cfg.MeasurementNoise),
			mat.NewVecDense(2, []float64{cfg.InitialPosition, 0}),
			p0,
		),
		z: mat.NewVecDense(1, nil),
	}
}

// Update runs predict then correct with measurement z and returns the
// smoothed position.
func (k *Kalman1D) Update(z float64) float64 {
	k.est.predict()
	k.z.SetVec(0, z)
	k.est.correct(k.z)
	return k.est.position(0)
}

// Predict advances the filter one step without a measurement.
func (k *Kalman1D) Predict() float64 {
	k.est.predict()
	return k.est.position(0)
}

// State returns the current position estimate.
func (k *Kalman1D) State() float64 {
	return k.est.position(0)
}

// Velocity returns the current velocity estimate.
func (k *Kalman1D) Velocity() float64 {
	return k.est.velocity(0)
}

// Covariance returns a copy of the 2x2 covariance.
func (k *Kalman1D) Covariance() *mat.Dense {
	return k.est.covariance()
}

// Reset restores the initial state and covariance.
func (k *Kalman1D) Reset() {
	k.est.reset()
}
