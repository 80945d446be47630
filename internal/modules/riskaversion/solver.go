// Package riskaversion recovers the risk-aversion coefficient q that best
// rationalizes observed portfolio weights under the MPT allocation rule
// w* = 0.5 * q * inv(Sigma) * R.
package riskaversion

import (
	"fmt"
	"math"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Method selects how the bounded minimizer of the objective is found.
type Method string

const (
	// MethodClosedForm clamps the analytic minimizer onto the bounds.
	MethodClosedForm Method = "closed_form"
	// MethodGoldenSection runs a golden-section search over the bounds.
	MethodGoldenSection Method = "golden_section"
	// MethodNelderMead runs a projected Nelder-Mead search.
	MethodNelderMead Method = "nelder_mead"
)

// Valid reports whether the method is known.
func (m Method) Valid() bool {
	switch m {
	case MethodClosedForm, MethodGoldenSection, MethodNelderMead:
		return true
	}
	return false
}

// Solver defaults
const (
	DefaultQMin          = 0.0
	DefaultQMax          = 100.0
	DefaultTolerance     = 1e-9
	DefaultMaxCondition  = 1 / 2.220446049250313e-16 // 1/eps: beyond this the solve is numerically singular
	DefaultWarnCondition = 1e8
)

// Config holds the solver settings.
type Config struct {
	QMin          float64
	QMax          float64
	Method        Method
	Tolerance     float64 // Bracket width for numeric searches
	MaxCondition  float64 // Condition number above which the solve fails, 1/eps by default
	WarnCondition float64 // Condition number above which a warning is logged
}

// DefaultConfig returns the solver defaults: q in [0, 100], closed form.
func DefaultConfig() Config {
	return Config{
		QMin:          DefaultQMin,
		QMax:          DefaultQMax,
		Method:        MethodClosedForm,
		Tolerance:     DefaultTolerance,
		MaxCondition:  DefaultMaxCondition,
		WarnCondition: DefaultWarnCondition,
	}
}

// Result is the recovered coefficient with its diagnostics.
type Result struct {
	Q             float64 // Minimizer of the objective over [QMin, QMax]
	Unconstrained float64 // Analytic minimizer before clamping
	Objective     float64 // F(Q)
	AtBound       bool    // Q sits on QMin or QMax because Unconstrained is outside
	Condition     float64 // Condition number estimate of the covariance matrix
	Method        Method
	Iterations    int // Search iterations, zero for the closed form
}

// Solver recovers q from returns, covariance and weights.
type Solver struct {
	cfg Config
	log zerolog.Logger
}

// NewSolver creates a solver. Zero fields of cfg take their defaults.
func NewSolver(cfg Config, log zerolog.Logger) *Solver {
	def := DefaultConfig()
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	if cfg.QMin == 0 && cfg.QMax == 0 {
		cfg.QMin, cfg.QMax = def.QMin, def.QMax
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxCondition <= 0 {
		cfg.MaxCondition = def.MaxCondition
	}
	if cfg.WarnCondition <= 0 {
		cfg.WarnCondition = def.WarnCondition
	}
	return &Solver{
		cfg: cfg,
		log: log.With().Str("component", "risk_aversion_solver").Logger(),
	}
}

// Solve returns the q in [QMin, QMax] minimizing ||w - 0.5*q*inv(Sigma)*R||.
// The three inputs must be indexed over the same assets in the same order.
func (s *Solver) Solve(returns measures.Vector, cov measures.CovarianceMatrix, weights measures.Vector) (Result, error) {
	if !s.cfg.Method.Valid() {
		return Result{}, fmt.Errorf("unknown solver method: %s", s.cfg.Method)
	}
	if s.cfg.QMin < 0 || s.cfg.QMin >= s.cfg.QMax {
		return Result{}, fmt.Errorf("invalid q bounds [%g, %g]", s.cfg.QMin, s.cfg.QMax)
	}

	assets, err := alignedAssets(returns, cov, weights)
	if err != nil {
		return Result{}, err
	}
	n := len(assets)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov.Sym()); !ok {
		return Result{}, fmt.Errorf("%w: covariance of %d assets is not positive definite", domain.ErrSingularCovariance, n)
	}
	cond := chol.Cond()
	if math.IsNaN(cond) || math.IsInf(cond, 0) || cond > s.cfg.MaxCondition {
		return Result{}, fmt.Errorf("%w: condition number %g exceeds %g", domain.ErrSingularCovariance, cond, s.cfg.MaxCondition)
	}
	if cond > s.cfg.WarnCondition {
		s.log.Warn().
			Float64("condition", cond).
			Float64("warn_threshold", s.cfg.WarnCondition).
			Msg("Covariance matrix is ill-conditioned")
	}

	var invSigmaR mat.VecDense
	if err := chol.SolveVecTo(&invSigmaR, mat.NewVecDense(n, returns.Values())); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrSingularCovariance, err)
	}
	v := invSigmaR.RawVector().Data
	w := weights.Values()

	unconstrained, err := ClosedForm(w, v)
	if err != nil {
		return Result{}, err
	}

	f := func(q float64) float64 { return Objective(q, w, v) }
	lo, hi := s.cfg.QMin, s.cfg.QMax

	result := Result{
		Unconstrained: unconstrained,
		Condition:     cond,
		Method:        s.cfg.Method,
	}

	switch s.cfg.Method {
	case MethodClosedForm:
		result.Q = Clamp(unconstrained, lo, hi)
	case MethodGoldenSection:
		x, iterations := goldenSection(f, lo, hi, s.cfg.Tolerance)
		result.Q = bestOfBounds(f, x, lo, hi)
		result.Iterations = iterations
	case MethodNelderMead:
		x, iterations, err := nelderMead(f, lo, hi, s.cfg.Tolerance)
		if err != nil {
			return Result{}, err
		}
		result.Q = bestOfBounds(f, x, lo, hi)
		result.Iterations = iterations
	}

	result.Objective = f(result.Q)
	result.AtBound = unconstrained < lo || unconstrained > hi

	s.log.Info().
		Int("assets", n).
		Str("method", string(result.Method)).
		Float64("q", result.Q).
		Float64("q_unconstrained", result.Unconstrained).
		Bool("at_bound", result.AtBound).
		Float64("objective", result.Objective).
		Float64("condition", cond).
		Msg("Recovered risk aversion")

	return result, nil
}

// alignedAssets checks that the three inputs share one asset order.
func alignedAssets(returns measures.Vector, cov measures.CovarianceMatrix, weights measures.Vector) ([]string, error) {
	assets := returns.Assets()
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets to solve over", domain.ErrInsufficientData)
	}
	if err := sameOrder("covariance", assets, cov.Assets()); err != nil {
		return nil, err
	}
	if err := sameOrder("weights", assets, weights.Assets()); err != nil {
		return nil, err
	}
	return assets, nil
}

func sameOrder(name string, want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: returns cover %d assets, %s cover %d", domain.ErrAssetSetMismatch, len(want), name, len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("%w: position %d is %s in returns but %s in %s", domain.ErrAssetSetMismatch, i, want[i], got[i], name)
		}
	}
	return nil
}
