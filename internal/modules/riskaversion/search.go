package riskaversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var invPhi = (math.Sqrt(5) - 1) / 2

// maxGoldenIterations caps the search when tol is below float64 resolution.
const maxGoldenIterations = 200

// goldenSection minimizes a unimodal f over [lo, hi] until the bracket is
// narrower than tol. It returns the bracket midpoint and the iteration count.
func goldenSection(f func(float64) float64, lo, hi, tol float64) (float64, int) {
	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := f(c), f(d)

	iterations := 0
	for b-a > tol && iterations < maxGoldenIterations {
		iterations++
		if fc <= fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = f(d)
		}
	}
	return (a + b) / 2, iterations
}

// maxNelderMeadIterations bounds the simplex search.
const maxNelderMeadIterations = 1000

// nelderMeadConverged lists the terminations accepted as a minimum.
var nelderMeadConverged = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionConvergence: true,
	optimize.MethodConverge:      true,
}

// nelderMead minimizes f over [lo, hi] with a one-dimensional Nelder-Mead
// simplex on the unbounded variable x, where q = lo + (hi-lo)*sigmoid(x).
// The mapping keeps f strictly monotone in x wherever it is in q, so the
// simplex never stalls on a plateau outside the interval.
func nelderMead(f func(float64) float64, lo, hi, tol float64) (float64, int, error) {
	toQ := func(x float64) float64 {
		return lo + (hi-lo)/(1+math.Exp(-x))
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return f(toQ(x[0]))
		},
	}

	settings := &optimize.Settings{
		MajorIterations: maxNelderMeadIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 100,
		},
	}

	// x = 0 is the interval midpoint
	result, err := optimize.Minimize(problem, []float64{0}, settings, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, fmt.Errorf("optimization failed: %w", err)
	}
	if !nelderMeadConverged[result.Status] {
		return 0, result.Stats.MajorIterations, fmt.Errorf("optimization did not converge: status=%v", result.Status)
	}

	return Clamp(toQ(result.X[0]), lo, hi), result.Stats.MajorIterations, nil
}
