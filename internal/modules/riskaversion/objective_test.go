package riskaversion

import (
	"fmt"
	"math"
	"testing"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjective(t *testing.T) {
	w := []float64{1, 0}
	v := []float64{2, 0}

	assert.InDelta(t, 1.0, Objective(0, w, v), 1e-15)
	assert.InDelta(t, 0.0, Objective(1, w, v), 1e-15)
	assert.InDelta(t, 1.0, Objective(2, w, v), 1e-15)

	// ||(3, 4) - 0.5*2*(0, 0)|| = 5
	assert.InDelta(t, 5.0, Objective(2, []float64{3, 4}, []float64{0, 0}), 1e-15)
}

func TestObjective_DoesNotMutateInputs(t *testing.T) {
	w := []float64{1, 2}
	v := []float64{3, 4}
	Objective(7, w, v)
	assert.Equal(t, []float64{1, 2}, w)
	assert.Equal(t, []float64{3, 4}, v)
}

func TestClosedForm(t *testing.T) {
	q, err := ClosedForm([]float64{1, 2}, []float64{0.5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, q, 1e-12)

	// The closed form is the minimizer of the objective.
	w := []float64{0.3, -0.1, 0.7}
	v := []float64{0.2, 0.4, 0.1}
	q, err = ClosedForm(w, v)
	require.NoError(t, err)
	f := Objective(q, w, v)
	assert.Less(t, f, Objective(q+1e-3, w, v))
	assert.Less(t, f, Objective(q-1e-3, w, v))
}

func TestClosedForm_Degenerate(t *testing.T) {
	_, err := ClosedForm([]float64{1, 2}, []float64{0, 0})
	assert.ErrorIs(t, err, domain.ErrDegenerateSystem)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
}

func TestGoldenSection_Parabola(t *testing.T) {
	x, iterations := goldenSection(func(x float64) float64 { return (x - 3) * (x - 3) }, 0, 10, 1e-10)
	assert.InDelta(t, 3.0, x, 1e-8)
	assert.Greater(t, iterations, 0)
}

func TestGoldenSection_StopsBelowResolution(t *testing.T) {
	_, iterations := goldenSection(math.Abs, -1, 1, 0)
	assert.Equal(t, maxGoldenIterations, iterations)
}

func TestNelderMead_FindsInteriorAndBoundaryMinimizers(t *testing.T) {
	testCases := []struct {
		target float64
		want   float64
	}{
		{0.5, 0.5},
		{3.7, 3.7},
		{42, 42},
		{99.9, 99.9},
		{-5, 0},
		{150, 100},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("target=%g", tc.target), func(t *testing.T) {
			f := func(q float64) float64 { return (q - tc.target) * (q - tc.target) }
			x, iterations, err := nelderMead(f, 0, 100, 1e-12)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, x, 1e-4)
			assert.Greater(t, iterations, 0)
		})
	}
}

func TestNelderMead_Parabola(t *testing.T) {
	x, _, err := nelderMead(func(x float64) float64 { return (x - 7) * (x - 7) }, 0, 100, 1e-12)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, x, 1e-4)
}
