// Package regression checks whether observed weights are predictable from the
// MPT inputs with generic linear models (OLS and Lasso), as a sanity check on
// the recovered risk aversion.
package regression

import (
	"fmt"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/measures"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a design matrix with one target per row.
type Dataset struct {
	X *mat.Dense
	Y []float64
}

// Rows returns the number of observations.
func (d Dataset) Rows() int {
	return len(d.Y)
}

// DesignMatrix builds one row per asset: [R_i, Sigma_i1 ... Sigma_in], with the
// asset's weight as target.
func DesignMatrix(returns measures.Vector, cov measures.CovarianceMatrix, weights measures.Vector) (Dataset, error) {
	assets := returns.Assets()
	n := len(assets)
	if n == 0 {
		return Dataset{}, fmt.Errorf("%w: no assets", domain.ErrInsufficientData)
	}
	for name, other := range map[string][]string{"covariance": cov.Assets(), "weights": weights.Assets()} {
		if len(other) != n {
			return Dataset{}, fmt.Errorf("%w: returns cover %d assets, %s cover %d", domain.ErrAssetSetMismatch, n, name, len(other))
		}
		for i := range assets {
			if assets[i] != other[i] {
				return Dataset{}, fmt.Errorf("%w: position %d is %s in returns but %s in %s", domain.ErrAssetSetMismatch, i, assets[i], other[i], name)
			}
		}
	}

	x := mat.NewDense(n, n+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, returns.At(i))
		for j := 0; j < n; j++ {
			x.Set(i, j+1, cov.At(i, j))
		}
	}

	return Dataset{X: x, Y: weights.Values()}, nil
}

// Split keeps the first floor(fraction*n) rows for training and the rest for
// testing. Training needs one row and testing two, so R^2 is defined.
func Split(d Dataset, fraction float64) (Dataset, Dataset, error) {
	n := d.Rows()
	cut := int(float64(n) * fraction)
	if cut < 1 || n-cut < 2 {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: %d rows split at %g leaves %d train and %d test rows",
			domain.ErrInsufficientData, n, fraction, cut, n-cut)
	}
	_, c := d.X.Dims()

	train := Dataset{
		X: mat.DenseCopyOf(d.X.Slice(0, cut, 0, c)),
		Y: append([]float64(nil), d.Y[:cut]...),
	}
	test := Dataset{
		X: mat.DenseCopyOf(d.X.Slice(cut, n, 0, c)),
		Y: append([]float64(nil), d.Y[cut:]...),
	}
	return train, test, nil
}
