package regression

import (
	"fmt"

	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/rs/zerolog"
)

// DefaultTrainFraction is the share of assets used for fitting.
const DefaultTrainFraction = 0.9

// DefaultLassoAlphas are the regularization strengths compared against OLS.
var DefaultLassoAlphas = []float64{0.1, 0.2, 0.5}

// Score is the out-of-sample fit of one model.
type Score struct {
	Model    string
	RSquared float64
}

// Checker fits OLS and Lasso models of weights on [returns | covariance] and
// scores them on held-out assets.
type Checker struct {
	trainFraction float64
	alphas        []float64
	log           zerolog.Logger
}

// NewChecker creates a checker with the default split and alphas.
func NewChecker(log zerolog.Logger) *Checker {
	return &Checker{
		trainFraction: DefaultTrainFraction,
		alphas:        DefaultLassoAlphas,
		log:           log.With().Str("component", "regression_check").Logger(),
	}
}

// Check returns the test R^2 of OLS followed by one Lasso per alpha.
func (c *Checker) Check(returns measures.Vector, cov measures.CovarianceMatrix, weights measures.Vector) ([]Score, error) {
	data, err := DesignMatrix(returns, cov, weights)
	if err != nil {
		return nil, err
	}
	train, test, err := Split(data, c.trainFraction)
	if err != nil {
		return nil, err
	}

	models := []Model{NewOLS()}
	for _, alpha := range c.alphas {
		models = append(models, NewLasso(alpha))
	}

	scores := make([]Score, 0, len(models))
	for _, m := range models {
		if err := m.Fit(train.X, train.Y); err != nil {
			return nil, fmt.Errorf("failed to fit %s: %w", m.Name(), err)
		}
		score := Score{Model: m.Name(), RSquared: RSquared(test.Y, m.Predict(test.X))}
		scores = append(scores, score)

		c.log.Info().
			Str("model", score.Model).
			Int("train_rows", train.Rows()).
			Int("test_rows", test.Rows()).
			Float64("r_squared", score.RSquared).
			Msg("Scored weight regression")
	}
	return scores, nil
}
