// Package runs stores the history of risk-aversion solves.
package runs

import (
	"fmt"
	"time"

	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/vmihailenco/msgpack/v5"
)

// Run is one completed solve together with the inputs it was computed from.
type Run struct {
	ID            string
	CreatedAt     time.Time
	Assets        int
	WeightSum     float64 // Emergent sum of the weight vector before any normalization
	Q             float64
	Unconstrained float64
	Objective     float64
	Condition     float64
	AtBound       bool
	Method        string
	Policy        string // Missing date policy used for the covariance
	Snapshot      Snapshot
}

// Snapshot is the solver input, stored as a msgpack blob.
type Snapshot struct {
	Assets     []string    `msgpack:"assets"`
	Returns    []float64   `msgpack:"returns"`
	Covariance [][]float64 `msgpack:"covariance"`
	Weights    []float64   `msgpack:"weights"`
	Normalized bool        `msgpack:"normalized"`
}

// NewSnapshot captures the measures a solve ran on.
func NewSnapshot(m measures.Measures) Snapshot {
	return Snapshot{
		Assets:     m.Returns.Assets(),
		Returns:    m.Returns.Values(),
		Covariance: m.Covariance.Rows(),
		Weights:    m.Weights.Values(),
		Normalized: m.Weights.Normalized,
	}
}

// Measures rebuilds validated measures from the snapshot.
func (s Snapshot) Measures(weightSum float64) (measures.Measures, error) {
	returns, err := measures.NewVector(s.Assets, s.Returns)
	if err != nil {
		return measures.Measures{}, fmt.Errorf("invalid snapshot returns: %w", err)
	}
	cov, err := measures.NewCovarianceMatrix(s.Assets, s.Covariance)
	if err != nil {
		return measures.Measures{}, fmt.Errorf("invalid snapshot covariance: %w", err)
	}
	w, err := measures.NewVector(s.Assets, s.Weights)
	if err != nil {
		return measures.Measures{}, fmt.Errorf("invalid snapshot weights: %w", err)
	}
	return measures.Measures{
		Returns:    returns,
		Covariance: cov,
		Weights:    measures.Weights{Vector: w, RawSum: weightSum, Normalized: s.Normalized},
	}, nil
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}
