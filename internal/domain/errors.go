// Package domain holds the error taxonomy shared by every stage of the pipeline.
//
// Each failure is unrecoverable for the run that triggers it. Stages wrap one of these
// sentinels with context (asset, date, row) so callers can both read the message and
// branch with errors.Is.
package domain

import "errors"

var (
	// ErrMalformedRecord reports a raw or artifact row with missing or unparseable fields.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDivisionByZero reports a zero first price (returns) or zero aggregate volume (weights).
	ErrDivisionByZero = errors.New("division by zero")

	// ErrAssetSetMismatch reports solver inputs indexed over different asset universes.
	ErrAssetSetMismatch = errors.New("asset set mismatch")

	// ErrSingularCovariance reports a covariance matrix that cannot be inverted reliably.
	ErrSingularCovariance = errors.New("singular covariance matrix")

	// ErrDegenerateSystem reports that the risk-aversion coefficient is unidentifiable.
	ErrDegenerateSystem = errors.New("degenerate system")

	// ErrInsufficientData reports too few aligned observations to estimate a statistic.
	ErrInsufficientData = errors.New("insufficient data")
)
