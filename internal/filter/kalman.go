package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinDeterminant is the smallest |det(S)| for which the innovation covariance
// is inverted. Below it the correction step is skipped and the predicted
// state is kept.
const MinDeterminant = 1e-12

// estimator is a discrete linear Kalman filter with n state dimensions and
// m observed dimensions. Kalman1D and Kalman2D are constant-velocity
// configurations of it.
type estimator struct {
	n, m int

	x *mat.VecDense // state
	p *mat.Dense    // estimate-error covariance

	f *mat.Dense // transition, n x n
	q *mat.Dense // process noise, n x n diagonal
	h *mat.Dense // observation, m x n
	r *mat.Dense // measurement noise, m x m diagonal

	x0 *mat.VecDense
	p0 *mat.Dense

	corrections int
	skipped     int
}

func newEstimator(f, q, h, r *mat.Dense, x0 *mat.VecDense, p0 *mat.Dense) *estimator {
	n, _ := f.Dims()
	m, _ := h.Dims()

	e := &estimator{
		n:  n,
		m:  m,
		f:  f,
		q:  q,
		h:  h,
		r:  r,
		x0: mat.VecDenseCopyOf(x0),
		p0: mat.DenseCopyOf(p0),
	}
	e.reset()
	return e
}

// constantVelocity builds the transition matrix for axes position/velocity
// pairs laid out as [p0..pk, v0..vk].
func constantVelocity(axes int, dt float64) *mat.Dense {
	n := 2 * axes
	f := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		f.Set(i, i, 1)
	}
	for a := 0; a < axes; a++ {
		f.Set(a, axes+a, dt)
	}
	return f
}

// positionObserver builds H selecting the position components.
func positionObserver(axes int) *mat.Dense {
	h := mat.NewDense(axes, 2*axes, nil)
	for a := 0; a < axes; a++ {
		h.Set(a, a, 1)
	}
	return h
}

func diagonal(values ...float64) *mat.Dense {
	d := mat.NewDense(len(values), len(values), nil)
	for i, v := range values {
		d.Set(i, i, v)
	}
	return d
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// predict propagates state and covariance one step:
// x = F*x, P = F*P*F^T + Q.
func (e *estimator) predict() {
	var x mat.VecDense
	x.MulVec(e.f, e.x)
	e.x.CopyVec(&x)

	var fp, fpft mat.Dense
	fp.Mul(e.f, e.p)
	fpft.Mul(&fp, e.f.T())
	fpft.Add(&fpft, e.q)
	e.p.Copy(&fpft)

	e.stabilize()
}

// correct folds measurement z into the state. It returns false when the
// innovation covariance is too close to singular to invert, in which case
// the predicted state is left untouched.
func (e *estimator) correct(z *mat.VecDense) bool {
	// Innovation y = z - H*x
	var hx, y mat.VecDense
	hx.MulVec(e.h, e.x)
	y.SubVec(z, &hx)

	// S = H*P*H^T + R
	var hp, s mat.Dense
	hp.Mul(e.h, e.p)
	s.Mul(&hp, e.h.T())
	s.Add(&s, e.r)

	sInv, ok := invertSmall(&s)
	if !ok {
		e.skipped++
		return false
	}

	// K = P*H^T*S^-1
	var pht, k mat.Dense
	pht.Mul(e.p, e.h.T())
	k.Mul(&pht, sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &y)
	e.x.AddVec(e.x, &ky)

	// P = (I - K*H)*P
	var kh, ikh, p mat.Dense
	kh.Mul(&k, e.h)
	ikh.Sub(identity(e.n), &kh)
	p.Mul(&ikh, e.p)
	e.p.Copy(&p)

	e.corrections++
	e.stabilize()
	return true
}

// invertSmall inverts a 1x1 or 2x2 innovation covariance in closed form,
// falling back to a general inverse for larger observations.
func invertSmall(s *mat.Dense) (*mat.Dense, bool) {
	r, _ := s.Dims()
	switch r {
	case 1:
		v := s.At(0, 0)
		if math.Abs(v) < MinDeterminant {
			return nil, false
		}
		return mat.NewDense(1, 1, []float64{1 / v}), true
	case 2:
		s00, s01 := s.At(0, 0), s.At(0, 1)
		s10, s11 := s.At(1, 0), s.At(1, 1)
		det := s00*s11 - s01*s10
		if math.Abs(det) < MinDeterminant || math.IsNaN(det) {
			return nil, false
		}
		return mat.NewDense(2, 2, []float64{
			s11 / det, -s01 / det,
			-s10 / det, s00 / det,
		}), true
	default:
		if math.Abs(mat.Det(s)) < MinDeterminant {
			return nil, false
		}
		var inv mat.Dense
		if err := inv.Inverse(s); err != nil {
			return nil, false
		}
		return &inv, true
	}
}

// stabilize keeps P symmetric with non-negative variances and resets the
// filter if round-off produced NaN or Inf.
func (e *estimator) stabilize() {
	for i := 0; i < e.n; i++ {
		for j := i + 1; j < e.n; j++ {
			avg := (e.p.At(i, j) + e.p.At(j, i)) / 2
			e.p.Set(i, j, avg)
			e.p.Set(j, i, avg)
		}
		if e.p.At(i, i) < 0 {
			e.p.Set(i, i, 0)
		}
	}

	if !e.finite() {
		e.restore()
	}
}

func (e *estimator) finite() bool {
	for i := 0; i < e.n; i++ {
		v := e.x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		for j := 0; j < e.n; j++ {
			pv := e.p.At(i, j)
			if math.IsNaN(pv) || math.IsInf(pv, 0) {
				return false
			}
		}
	}
	return true
}

// restore returns state and covariance to their initial values. The skipped
// counter is kept so a non-finite reset stays visible.
func (e *estimator) restore() {
	e.x = mat.VecDenseCopyOf(e.x0)
	e.p = mat.DenseCopyOf(e.p0)
	e.corrections = 0
}

// reset restores the initial state and clears all counters.
func (e *estimator) reset() {
	e.restore()
	e.skipped = 0
}

func (e *estimator) position(axis int) float64 {
	return e.x.AtVec(axis)
}

func (e *estimator) velocity(axis int) float64 {
	return e.x.AtVec(e.m + axis)
}

func (e *estimator) covariance() *mat.Dense {
	return mat.DenseCopyOf(e.p)
}
