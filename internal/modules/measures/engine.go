package measures

import (
	"fmt"

	"github.com/aristath/riskaversion/internal/modules/panel"
	"github.com/rs/zerolog"
)

// Measures bundles the three statistical artifacts of one panel. All three are
// indexed over the same asset order.
type Measures struct {
	Returns    Vector
	Covariance CovarianceMatrix
	Weights    Weights
	Policy     MissingDatePolicy // Missing date handling the covariance was computed with
}

// Engine runs the returns, covariance and weight calculators over a panel.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// NewEngine creates a measure engine.
func NewEngine(opts Options, log zerolog.Logger) *Engine {
	if opts.MissingDates == "" {
		opts.MissingDates = PolicyIntersect
	}
	return &Engine{
		opts: opts,
		log:  log.With().Str("component", "measure_engine").Logger(),
	}
}

// Measure computes returns, covariance and weights for the panel.
func (e *Engine) Measure(p *panel.Panel) (Measures, error) {
	returns, err := CalculateReturns(p)
	if err != nil {
		return Measures{}, fmt.Errorf("failed to calculate returns: %w", err)
	}

	cov, err := CalculateCovariance(p, e.opts.MissingDates)
	if err != nil {
		return Measures{}, fmt.Errorf("failed to calculate covariance: %w", err)
	}

	weights, err := CalculateWeights(p, e.opts.NormalizeWeights)
	if err != nil {
		return Measures{}, fmt.Errorf("failed to calculate weights: %w", err)
	}

	e.log.Info().
		Int("assets", returns.Len()).
		Str("missing_dates", string(e.opts.MissingDates)).
		Float64("weight_sum", weights.RawSum).
		Bool("weights_normalized", weights.Normalized).
		Msg("Calculated measures")

	return Measures{Returns: returns, Covariance: cov, Weights: weights, Policy: e.opts.MissingDates}, nil
}
