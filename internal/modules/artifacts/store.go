// Package artifacts persists the pipeline's tabular artifacts as CSV files and
// reads them back for the later stages.
package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/aristath/riskaversion/internal/modules/panel"
	"github.com/rs/zerolog"
)

// Artifact file names
const (
	PanelFile        = "stocks.csv"
	ReturnsFile      = "returns.csv"
	CovarianceFile   = "covariance.csv"
	WeightsFile      = "weight.csv"
	RiskAversionFile = "risk_aversion.csv"
	MetaFile         = "measures_meta.csv"
)

// Column headers
const (
	assetColumn  = "asset_id"
	returnColumn = "return"
	weightColumn = "weight"
	qColumn      = "q"
)

// Keys of the measure metadata table
const (
	metaPolicy     = "missing_dates"
	metaRawSum     = "weight_raw_sum"
	metaNormalized = "weights_normalized"
)

// Store reads and writes artifacts in one directory.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates an artifact store rooted at dir.
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{
		dir: dir,
		log: log.With().Str("component", "artifact_store").Logger(),
	}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of an artifact file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// write replaces an artifact atomically: rows go to a temporary file in the
// same directory which is then renamed over the target.
func (s *Store) write(name string, rows [][]string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	path := s.Path(name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	s.log.Debug().Str("file", name).Int("rows", len(rows)-1).Msg("Wrote artifact")
	return path, nil
}

// WritePanel writes the canonical panel: asset_id, date, price, volume.
func (s *Store) WritePanel(p *panel.Panel) (string, error) {
	records := p.Records()
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{assetColumn, "date", "price", "volume"})
	for _, r := range records {
		rows = append(rows, []string{r.AssetID, r.Date.Format(panel.DateLayout), formatFloat(r.Price), formatFloat(r.Volume)})
	}
	return s.write(PanelFile, rows)
}

// WriteReturns writes asset_id, return.
func (s *Store) WriteReturns(v measures.Vector) (string, error) {
	return s.write(ReturnsFile, vectorRows(returnColumn, v))
}

// WriteWeights writes asset_id, weight.
func (s *Store) WriteWeights(w measures.Weights) (string, error) {
	return s.write(WeightsFile, vectorRows(weightColumn, w.Vector))
}

// WriteCovariance writes the square table with asset identifiers as row index
// and column headers.
func (s *Store) WriteCovariance(c measures.CovarianceMatrix) (string, error) {
	assets := c.Assets()
	rows := make([][]string, 0, len(assets)+1)
	rows = append(rows, append([]string{assetColumn}, assets...))
	for i, asset := range assets {
		row := make([]string, 0, len(assets)+1)
		row = append(row, asset)
		for j := range assets {
			row = append(row, formatFloat(c.At(i, j)))
		}
		rows = append(rows, row)
	}
	return s.write(CovarianceFile, rows)
}

// WriteRiskAversion writes the single-column q table.
func (s *Store) WriteRiskAversion(q float64) (string, error) {
	return s.write(RiskAversionFile, [][]string{{qColumn}, {formatFloat(q)}})
}

// WriteMeta writes how the measures were produced: the missing date policy,
// the weight sum before normalization, and whether weights were normalized.
func (s *Store) WriteMeta(m measures.Measures) (string, error) {
	return s.write(MetaFile, [][]string{
		{"key", "value"},
		{metaPolicy, string(m.Policy)},
		{metaRawSum, formatFloat(m.Weights.RawSum)},
		{metaNormalized, strconv.FormatBool(m.Weights.Normalized)},
	})
}

// WriteMeasures writes returns, covariance, weights and their metadata and
// returns the paths.
func (s *Store) WriteMeasures(m measures.Measures) ([]string, error) {
	var paths []string
	for _, write := range []func() (string, error){
		func() (string, error) { return s.WriteReturns(m.Returns) },
		func() (string, error) { return s.WriteCovariance(m.Covariance) },
		func() (string, error) { return s.WriteWeights(m.Weights) },
		func() (string, error) { return s.WriteMeta(m) },
	} {
		path, err := write()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func vectorRows(column string, v measures.Vector) [][]string {
	assets := v.Assets()
	rows := make([][]string, 0, len(assets)+1)
	rows = append(rows, []string{assetColumn, column})
	for i, asset := range assets {
		rows = append(rows, []string{asset, formatFloat(v.At(i))})
	}
	return rows
}
