package riskaversion

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/aristath/riskaversion/internal/modules/panel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var allMethods = []Method{MethodClosedForm, MethodGoldenSection, MethodNelderMead}

func methodTolerance(m Method) float64 {
	if m == MethodNelderMead {
		return 1e-4
	}
	return 1e-6
}

func assetNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("S%02d", i)
	}
	return names
}

// randomProblem returns a well-conditioned covariance A*A' + n*I, random
// returns, and v = inv(Sigma)*R.
func randomProblem(t *testing.T, rng *rand.Rand, n int) (measures.Vector, measures.CovarianceMatrix, []float64) {
	t.Helper()
	assets := assetNames(n)

	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rng.Float64()-0.5)
		}
	}
	var aat mat.Dense
	aat.Mul(a, a.T())

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = (aat.At(i, j) + aat.At(j, i)) / 2
		}
		rows[i][i] += float64(n)
	}
	cov, err := measures.NewCovarianceMatrix(assets, rows)
	require.NoError(t, err)

	r := make([]float64, n)
	for i := range r {
		r[i] = rng.Float64() - 0.3
	}
	returns, err := measures.NewVector(assets, r)
	require.NoError(t, err)

	var v mat.VecDense
	require.NoError(t, v.SolveVec(cov.Sym(), mat.NewVecDense(n, r)))

	return returns, cov, v.RawVector().Data
}

func weightsFor(t *testing.T, assets []string, q float64, v []float64) measures.Vector {
	t.Helper()
	w := make([]float64, len(v))
	for i := range v {
		w[i] = 0.5 * q * v[i]
	}
	vec, err := measures.NewVector(assets, w)
	require.NoError(t, err)
	return vec
}

func TestSolver_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for _, method := range allMethods {
		for _, q := range []float64{0, 0.5, 3.7, 42, 99.9, 100} {
			t.Run(fmt.Sprintf("%s/q=%g", method, q), func(t *testing.T) {
				returns, cov, v := randomProblem(t, rng, 5)
				weights := weightsFor(t, returns.Assets(), q, v)

				solver := NewSolver(Config{Method: method}, zerolog.Nop())
				res, err := solver.Solve(returns, cov, weights)
				require.NoError(t, err)

				assert.InDelta(t, q, res.Q, methodTolerance(method))
				assert.InDelta(t, q, res.Unconstrained, 1e-6)
				assert.InDelta(t, 0.0, res.Objective, 1e-4)
				assert.Equal(t, method, res.Method)
				assert.Greater(t, res.Condition, 0.0)
			})
		}
	}
}

func TestSolver_MethodsAgreeWithClosedForm(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	returns, cov, _ := randomProblem(t, rng, 6)

	w := make([]float64, 6)
	for i := range w {
		w[i] = rng.Float64() / 6
	}
	weights, err := measures.NewVector(returns.Assets(), w)
	require.NoError(t, err)

	closed, err := NewSolver(Config{Method: MethodClosedForm}, zerolog.Nop()).Solve(returns, cov, weights)
	require.NoError(t, err)

	for _, method := range []Method{MethodGoldenSection, MethodNelderMead} {
		res, err := NewSolver(Config{Method: method, QMin: 0, QMax: 1e4}, zerolog.Nop()).Solve(returns, cov, weights)
		require.NoError(t, err)
		expected := Clamp(closed.Unconstrained, 0, 1e4)
		assert.InDelta(t, expected, res.Q, 1e-3*max(1, expected), string(method))
		assert.Greater(t, res.Iterations, 0)
	}
}

func TestSolver_BoundaryBehavior(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	testCases := []struct {
		name     string
		trueQ    float64
		expected float64
	}{
		{"above upper bound", 150, 100},
		{"below lower bound", -10, 0},
	}

	for _, method := range allMethods {
		for _, tc := range testCases {
			t.Run(string(method)+"/"+tc.name, func(t *testing.T) {
				returns, cov, v := randomProblem(t, rng, 4)
				weights := weightsFor(t, returns.Assets(), tc.trueQ, v)

				res, err := NewSolver(Config{Method: method}, zerolog.Nop()).Solve(returns, cov, weights)
				require.NoError(t, err)

				assert.Equal(t, tc.expected, res.Q, "bound must be returned exactly")
				assert.True(t, res.AtBound)
				assert.InDelta(t, tc.trueQ, res.Unconstrained, 1e-6)
			})
		}
	}
}

func TestSolver_CustomBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	returns, cov, v := randomProblem(t, rng, 3)
	weights := weightsFor(t, returns.Assets(), 5, v)

	res, err := NewSolver(Config{QMin: 10, QMax: 20}, zerolog.Nop()).Solve(returns, cov, weights)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Q)
}

func TestSolver_InvalidConfig(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	returns, cov, v := randomProblem(t, rng, 3)
	weights := weightsFor(t, returns.Assets(), 5, v)

	_, err := NewSolver(Config{QMin: 20, QMax: 10}, zerolog.Nop()).Solve(returns, cov, weights)
	assert.Error(t, err)

	_, err = NewSolver(Config{Method: "simplex"}, zerolog.Nop()).Solve(returns, cov, weights)
	assert.Error(t, err)
}

func measuredPanel(t *testing.T, prices map[string][]float64) measures.Measures {
	t.Helper()
	var records []panel.Record
	for asset, series := range prices {
		for i, price := range series {
			records = append(records, panel.Record{
				AssetID: asset,
				Date:    time.Date(2013, 2, 8+i, 0, 0, 0, 0, time.UTC),
				Price:   price,
				Volume:  100,
			})
		}
	}
	p, err := panel.New(records)
	require.NoError(t, err)
	m, err := measures.NewEngine(measures.Options{}, zerolog.Nop()).Measure(p)
	require.NoError(t, err)
	return m
}

func TestSolver_SingularCovariance_ProportionalPrices(t *testing.T) {
	m := measuredPanel(t, map[string][]float64{
		"A": {10, 12, 14},
		"B": {20, 24, 28},
	})

	_, err := NewSolver(DefaultConfig(), zerolog.Nop()).Solve(m.Returns, m.Covariance, m.Weights.Vector)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSingularCovariance)
}

func TestSolver_SingularCovariance_TwoDatesThreeAssets(t *testing.T) {
	// Two observations give a rank-one covariance for three assets.
	m := measuredPanel(t, map[string][]float64{
		"A": {10, 12},
		"B": {20, 19},
		"C": {5, 5.5},
	})

	_, err := NewSolver(DefaultConfig(), zerolog.Nop()).Solve(m.Returns, m.Covariance, m.Weights.Vector)
	assert.ErrorIs(t, err, domain.ErrSingularCovariance)
}

func TestSolver_IllConditionedCovariance(t *testing.T) {
	assets := []string{"A", "B"}
	returns, err := measures.NewVector(assets, []float64{0.1, 0.2})
	require.NoError(t, err)
	weights, err := measures.NewVector(assets, []float64{0.5, 0.5})
	require.NoError(t, err)

	cov, err := measures.NewCovarianceMatrix(assets, [][]float64{{1, 0}, {0, 1e-17}})
	require.NoError(t, err)
	_, err = NewSolver(DefaultConfig(), zerolog.Nop()).Solve(returns, cov, weights)
	assert.ErrorIs(t, err, domain.ErrSingularCovariance, "condition 1e17 is beyond float64 resolution")

	cov, err = measures.NewCovarianceMatrix(assets, [][]float64{{1, 0}, {0, 1e-11}})
	require.NoError(t, err)
	_, err = NewSolver(Config{MaxCondition: 1e10}, zerolog.Nop()).Solve(returns, cov, weights)
	assert.ErrorIs(t, err, domain.ErrSingularCovariance, "explicit cap is honored")

	var buf bytes.Buffer
	cov, err = measures.NewCovarianceMatrix(assets, [][]float64{{1, 0}, {0, 1e-9}})
	require.NoError(t, err)
	_, err = NewSolver(DefaultConfig(), zerolog.New(&buf)).Solve(returns, cov, weights)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ill-conditioned")
}

func TestSolver_RoundTripOnPriceScaleCovariance(t *testing.T) {
	assets := []string{"A", "B"}
	returns, err := measures.NewVector(assets, []float64{1, 1e-9})
	require.NoError(t, err)
	cov, err := measures.NewCovarianceMatrix(assets, [][]float64{{1e4, 0}, {0, 1e-9}})
	require.NoError(t, err)

	// v = inv(Sigma)*R = (1e-4, 1), w = 0.5*q*v with q = 10
	weights, err := measures.NewVector(assets, []float64{5e-4, 5})
	require.NoError(t, err)

	for _, method := range allMethods {
		t.Run(string(method), func(t *testing.T) {
			var buf bytes.Buffer
			res, err := NewSolver(Config{Method: method}, zerolog.New(&buf)).Solve(returns, cov, weights)
			require.NoError(t, err)
			assert.InDelta(t, 10.0, res.Q, methodTolerance(method))
			assert.InDelta(t, 1e13, res.Condition, 1e11)
			assert.Contains(t, buf.String(), "ill-conditioned")
		})
	}
}

func TestSolver_DegenerateSystem(t *testing.T) {
	assets := []string{"A", "B"}
	returns, err := measures.NewVector(assets, []float64{0, 0})
	require.NoError(t, err)
	weights, err := measures.NewVector(assets, []float64{0.4, 0.6})
	require.NoError(t, err)
	cov, err := measures.NewCovarianceMatrix(assets, [][]float64{{2, 0.5}, {0.5, 1}})
	require.NoError(t, err)

	res, err := NewSolver(DefaultConfig(), zerolog.Nop()).Solve(returns, cov, weights)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDegenerateSystem)
	assert.Equal(t, Result{}, res)
}

func TestSolver_AssetSetMismatch(t *testing.T) {
	cov, err := measures.NewCovarianceMatrix([]string{"A", "B"}, [][]float64{{2, 0.5}, {0.5, 1}})
	require.NoError(t, err)
	returns, err := measures.NewVector([]string{"A", "B"}, []float64{0.1, 0.2})
	require.NoError(t, err)

	testCases := []struct {
		name    string
		assets  []string
		weights []float64
	}{
		{"reordered", []string{"B", "A"}, []float64{0.5, 0.5}},
		{"different asset", []string{"A", "C"}, []float64{0.5, 0.5}},
		{"missing asset", []string{"A"}, []float64{1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			weights, err := measures.NewVector(tc.assets, tc.weights)
			require.NoError(t, err)
			_, err = NewSolver(DefaultConfig(), zerolog.Nop()).Solve(returns, cov, weights)
			assert.ErrorIs(t, err, domain.ErrAssetSetMismatch)
		})
	}

	otherCov, err := measures.NewCovarianceMatrix([]string{"B", "A"}, [][]float64{{1, 0.5}, {0.5, 2}})
	require.NoError(t, err)
	weights, err := measures.NewVector([]string{"A", "B"}, []float64{0.5, 0.5})
	require.NoError(t, err)
	_, err = NewSolver(DefaultConfig(), zerolog.Nop()).Solve(returns, otherCov, weights)
	assert.ErrorIs(t, err, domain.ErrAssetSetMismatch)
}

func TestSolver_NoAssets(t *testing.T) {
	_, err := NewSolver(DefaultConfig(), zerolog.Nop()).Solve(measures.Vector{}, measures.CovarianceMatrix{}, measures.Vector{})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
