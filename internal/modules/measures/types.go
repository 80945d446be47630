// Package measures derives the MPT inputs from a price panel: per-asset returns,
// the price covariance matrix and volume-share allocation weights.
package measures

import (
	"fmt"
	"math"

	"github.com/aristath/riskaversion/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// MissingDatePolicy decides which dates enter a covariance entry when assets
// are not observed on the same calendar.
type MissingDatePolicy string

const (
	// PolicyIntersect keeps only dates observed for every asset.
	PolicyIntersect MissingDatePolicy = "intersect"
	// PolicyPairwise uses, for each pair, the dates both assets are observed on.
	PolicyPairwise MissingDatePolicy = "pairwise"
)

// Valid reports whether the policy is known.
func (p MissingDatePolicy) Valid() bool {
	return p == PolicyIntersect || p == PolicyPairwise
}

// Options configures the measure engine.
type Options struct {
	MissingDates     MissingDatePolicy
	NormalizeWeights bool
}

// Vector is an asset-indexed vector. The asset order is explicit and travels
// with the values.
type Vector struct {
	assets []string
	values []float64
}

// NewVector pairs asset identifiers with values. Identifiers must be unique
// and non-empty, values finite.
func NewVector(assets []string, values []float64) (Vector, error) {
	if len(assets) != len(values) {
		return Vector{}, fmt.Errorf("%w: %d assets but %d values", domain.ErrMalformedRecord, len(assets), len(values))
	}
	if err := checkAssets(assets); err != nil {
		return Vector{}, err
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Vector{}, fmt.Errorf("%w: non-finite value for %s", domain.ErrMalformedRecord, assets[i])
		}
	}
	a := make([]string, len(assets))
	copy(a, assets)
	v := make([]float64, len(values))
	copy(v, values)
	return Vector{assets: a, values: v}, nil
}

// Len returns the number of assets.
func (v Vector) Len() int { return len(v.assets) }

// Assets returns the asset order.
func (v Vector) Assets() []string {
	out := make([]string, len(v.assets))
	copy(out, v.assets)
	return out
}

// Values returns the values in asset order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// At returns the i-th value.
func (v Vector) At(i int) float64 { return v.values[i] }

// Get returns the value of one asset.
func (v Vector) Get(asset string) (float64, bool) {
	for i, a := range v.assets {
		if a == asset {
			return v.values[i], true
		}
	}
	return 0, false
}

// Sum returns the sum of all values.
func (v Vector) Sum() float64 {
	return floats.Sum(v.values)
}

// Weights is the observed allocation weight vector. RawSum is the emergent total
// of the volume shares before any normalization and is always reported.
type Weights struct {
	Vector
	RawSum     float64
	Normalized bool
}

// CovarianceMatrix is a symmetric asset-by-asset matrix indexed by asset on
// both axes.
type CovarianceMatrix struct {
	assets []string
	data   *mat.SymDense
}

// NewCovarianceMatrix builds a covariance matrix from square, symmetric rows.
func NewCovarianceMatrix(assets []string, rows [][]float64) (CovarianceMatrix, error) {
	n := len(assets)
	if n == 0 {
		return CovarianceMatrix{}, fmt.Errorf("%w: covariance matrix has no assets", domain.ErrInsufficientData)
	}
	if err := checkAssets(assets); err != nil {
		return CovarianceMatrix{}, err
	}
	if len(rows) != n {
		return CovarianceMatrix{}, fmt.Errorf("%w: covariance has %d rows for %d assets", domain.ErrMalformedRecord, len(rows), n)
	}
	for i := range rows {
		if len(rows[i]) != n {
			return CovarianceMatrix{}, fmt.Errorf("%w: covariance row %s has %d columns, expected %d", domain.ErrMalformedRecord, assets[i], len(rows[i]), n)
		}
	}

	data := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a, b := rows[i][j], rows[j][i]
			if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
				return CovarianceMatrix{}, fmt.Errorf("%w: non-finite covariance for (%s, %s)", domain.ErrMalformedRecord, assets[i], assets[j])
			}
			if !scalar.EqualWithinAbsOrRel(a, b, 1e-12, 1e-9) {
				return CovarianceMatrix{}, fmt.Errorf("%w: covariance not symmetric at (%s, %s)", domain.ErrMalformedRecord, assets[i], assets[j])
			}
			if i == j && a < 0 {
				return CovarianceMatrix{}, fmt.Errorf("%w: negative variance for %s", domain.ErrMalformedRecord, assets[i])
			}
			data.SetSym(i, j, a)
		}
	}

	a := make([]string, n)
	copy(a, assets)
	return CovarianceMatrix{assets: a, data: data}, nil
}

func newCovarianceFromSym(assets []string, data *mat.SymDense) CovarianceMatrix {
	a := make([]string, len(assets))
	copy(a, assets)
	return CovarianceMatrix{assets: a, data: data}
}

// Len returns the number of assets.
func (c CovarianceMatrix) Len() int { return len(c.assets) }

// Assets returns the index order shared by rows and columns.
func (c CovarianceMatrix) Assets() []string {
	out := make([]string, len(c.assets))
	copy(out, c.assets)
	return out
}

// At returns entry (i, j).
func (c CovarianceMatrix) At(i, j int) float64 { return c.data.At(i, j) }

// Get returns the covariance between two assets.
func (c CovarianceMatrix) Get(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, asset := range c.assets {
		if asset == a {
			i = k
		}
		if asset == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.data.At(i, j), true
}

// Rows returns the matrix as row slices.
func (c CovarianceMatrix) Rows() [][]float64 {
	n := len(c.assets)
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = c.data.At(i, j)
		}
	}
	return rows
}

// Sym returns a copy of the matrix for linear algebra.
func (c CovarianceMatrix) Sym() *mat.SymDense {
	s := mat.NewSymDense(len(c.assets), nil)
	s.CopySym(c.data)
	return s
}

func checkAssets(assets []string) error {
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if a == "" {
			return fmt.Errorf("%w: empty asset identifier", domain.ErrMalformedRecord)
		}
		if _, ok := seen[a]; ok {
			return fmt.Errorf("%w: duplicate asset identifier %s", domain.ErrMalformedRecord, a)
		}
		seen[a] = struct{}{}
	}
	return nil
}
