package riskaversion

import (
	"fmt"
	"math"

	"github.com/aristath/riskaversion/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// Objective is the residual norm F(q) = ||w - 0.5*q*v||_2 between the observed
// weights w and the MPT allocation rule with v = inv(Sigma)*R.
func Objective(q float64, w, v []float64) float64 {
	residual := make([]float64, len(w))
	floats.AddScaledTo(residual, w, -0.5*q, v)
	return floats.Norm(residual, 2)
}

// ClosedForm returns the unconstrained minimizer of Objective,
// q* = 2*(w.v)/(v.v). It fails when v.v is zero, since every q then fits
// equally well.
func ClosedForm(w, v []float64) (float64, error) {
	vv := floats.Dot(v, v)
	if vv == 0 {
		return 0, fmt.Errorf("%w: inverse-covariance-weighted returns are zero, risk aversion is unidentifiable", domain.ErrDegenerateSystem)
	}
	q := 2 * floats.Dot(w, v) / vv
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, fmt.Errorf("%w: closed-form minimizer is not finite", domain.ErrDegenerateSystem)
	}
	return q, nil
}

// Clamp projects q onto [lo, hi].
func Clamp(q, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, q))
}

// bestOfBounds compares a search result against both interval ends. The
// objective is convex, so when the minimizer lies outside the interval the
// nearer bound wins and is returned exactly. Ties go to the bound.
func bestOfBounds(f func(float64) float64, x, lo, hi float64) float64 {
	best, fBest := x, f(x)
	for _, b := range []float64{lo, hi} {
		if fb := f(b); fb <= fBest {
			best, fBest = b, fb
		}
	}
	return best
}
