package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Model is a linear model with an intercept.
type Model interface {
	Name() string
	Fit(x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) []float64
}

// linear holds fitted coefficients shared by both models.
type linear struct {
	Intercept float64
	Coef      []float64
}

func (l *linear) Predict(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	pred := make([]float64, r)
	for i := 0; i < r; i++ {
		pred[i] = l.Intercept + floats.Dot(x.RawRowView(i), l.Coef)
	}
	return pred
}

// center subtracts column means from x and the mean from y.
func center(x *mat.Dense, y []float64) (*mat.Dense, []float64, []float64, float64) {
	r, c := x.Dims()
	xc := mat.DenseCopyOf(x)
	means := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
		for i := 0; i < r; i++ {
			xc.Set(i, j, x.At(i, j)-means[j])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, len(y))
	for i := range y {
		yc[i] = y[i] - yMean
	}
	return xc, yc, means, yMean
}

// OLS is ordinary least squares. When the system is underdetermined (more
// columns than rows) it returns the minimum-norm solution.
type OLS struct {
	linear
	// RCond is the relative singular value cutoff for the rank.
	RCond float64
}

// NewOLS creates an OLS model.
func NewOLS() *OLS {
	return &OLS{RCond: 1e-12}
}

// Name implements Model.
func (m *OLS) Name() string { return "ols" }

// Fit implements Model.
func (m *OLS) Fit(x *mat.Dense, y []float64) error {
	r, _ := x.Dims()
	if r != len(y) || r == 0 {
		return fmt.Errorf("design has %d rows for %d targets", r, len(y))
	}
	xc, yc, means, yMean := center(x, y)

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return fmt.Errorf("svd factorization failed")
	}

	rank := svd.Rank(m.RCond)
	var coef mat.VecDense
	if rank == 0 {
		_, c := x.Dims()
		coef = *mat.NewVecDense(c, nil)
	} else {
		svd.SolveVecTo(&coef, mat.NewVecDense(len(yc), yc), rank)
	}

	m.Coef = append([]float64(nil), coef.RawVector().Data...)
	m.Intercept = yMean - floats.Dot(means, m.Coef)
	return nil
}

// Lasso is L1-regularized least squares minimizing
// (1/2n)*||y - X*b||^2 + Alpha*||b||_1 by cyclic coordinate descent.
type Lasso struct {
	linear
	Alpha   float64
	MaxIter int
	Tol     float64
}

// NewLasso creates a Lasso model.
func NewLasso(alpha float64) *Lasso {
	return &Lasso{Alpha: alpha, MaxIter: 1000, Tol: 1e-4}
}

// Name implements Model.
func (m *Lasso) Name() string { return fmt.Sprintf("lasso(alpha=%g)", m.Alpha) }

// Fit implements Model.
func (m *Lasso) Fit(x *mat.Dense, y []float64) error {
	r, c := x.Dims()
	if r != len(y) || r == 0 {
		return fmt.Errorf("design has %d rows for %d targets", r, len(y))
	}
	if m.Alpha < 0 {
		return fmt.Errorf("alpha must be non-negative, got %g", m.Alpha)
	}
	xc, yc, means, yMean := center(x, y)

	cols := make([][]float64, c)
	sqNorms := make([]float64, c)
	for j := 0; j < c; j++ {
		cols[j] = mat.Col(nil, j, xc)
		sqNorms[j] = floats.Dot(cols[j], cols[j])
	}

	coef := make([]float64, c)
	residual := append([]float64(nil), yc...)
	threshold := m.Alpha * float64(r)

	for iter := 0; iter < m.MaxIter; iter++ {
		var maxDelta, maxCoef float64
		for j := 0; j < c; j++ {
			if sqNorms[j] == 0 {
				continue
			}
			old := coef[j]
			rho := floats.Dot(cols[j], residual) + sqNorms[j]*old
			coef[j] = softThreshold(rho, threshold) / sqNorms[j]
			if delta := coef[j] - old; delta != 0 {
				floats.AddScaled(residual, -delta, cols[j])
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
			maxCoef = math.Max(maxCoef, math.Abs(coef[j]))
		}
		if maxCoef == 0 || maxDelta/maxCoef < m.Tol {
			break
		}
	}

	m.Coef = coef
	m.Intercept = yMean - floats.Dot(means, coef)
	return nil
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

// RSquared is the coefficient of determination of pred against y. A constant
// target scores 1 when predicted exactly and 0 otherwise.
func RSquared(y, pred []float64) float64 {
	yMean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - yMean) * (y[i] - yMean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
