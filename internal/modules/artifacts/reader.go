package artifacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/measures"
)

// indexColumns are accepted names for the asset index column. "name" is the
// header written by earlier tooling for the same tables.
var indexColumns = map[string]bool{assetColumn: true, "name": true}

func (s *Store) readAll(name string) ([][]string, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedRecord, name, err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s has no data rows", domain.ErrMalformedRecord, name)
	}
	return rows, nil
}

func parseCell(name string, line int, cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s line %d: invalid number %q", domain.ErrMalformedRecord, name, line, cell)
	}
	return v, nil
}

func (s *Store) readVector(name, column string) (measures.Vector, error) {
	rows, err := s.readAll(name)
	if err != nil {
		return measures.Vector{}, err
	}
	header := rows[0]
	if len(header) != 2 || !indexColumns[strings.TrimSpace(header[0])] || strings.TrimSpace(header[1]) != column {
		return measures.Vector{}, fmt.Errorf("%w: %s header must be %s,%s", domain.ErrMalformedRecord, name, assetColumn, column)
	}

	assets := make([]string, 0, len(rows)-1)
	values := make([]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 2 {
			return measures.Vector{}, fmt.Errorf("%w: %s line %d has %d fields", domain.ErrMalformedRecord, name, i+2, len(row))
		}
		v, err := parseCell(name, i+2, row[1])
		if err != nil {
			return measures.Vector{}, err
		}
		assets = append(assets, strings.TrimSpace(row[0]))
		values = append(values, v)
	}

	vec, err := measures.NewVector(assets, values)
	if err != nil {
		return measures.Vector{}, fmt.Errorf("%s: %w", name, err)
	}
	return vec, nil
}

// ReadReturns reads returns.csv.
func (s *Store) ReadReturns() (measures.Vector, error) {
	return s.readVector(ReturnsFile, returnColumn)
}

// meta is the content of measures_meta.csv.
type meta struct {
	policy     measures.MissingDatePolicy
	rawSum     float64
	normalized bool
}

// readMeta reads measures_meta.csv. found is false when the file does not
// exist, as for artifacts written by other tools.
func (s *Store) readMeta() (m meta, found bool, err error) {
	if _, err := os.Stat(s.Path(MetaFile)); errors.Is(err, os.ErrNotExist) {
		return meta{}, false, nil
	}
	rows, err := s.readAll(MetaFile)
	if err != nil {
		return meta{}, false, err
	}

	values := make(map[string]string, len(rows)-1)
	lines := make(map[string]int, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 2 {
			return meta{}, false, fmt.Errorf("%w: %s line %d has %d fields", domain.ErrMalformedRecord, MetaFile, i+2, len(row))
		}
		key := strings.TrimSpace(row[0])
		values[key] = strings.TrimSpace(row[1])
		lines[key] = i + 2
	}

	for _, key := range []string{metaPolicy, metaRawSum, metaNormalized} {
		if _, ok := values[key]; !ok {
			return meta{}, false, fmt.Errorf("%w: %s is missing %s", domain.ErrMalformedRecord, MetaFile, key)
		}
	}

	m.policy = measures.MissingDatePolicy(values[metaPolicy])
	if m.policy != "" && !m.policy.Valid() {
		return meta{}, false, fmt.Errorf("%w: %s has unknown policy %q", domain.ErrMalformedRecord, MetaFile, m.policy)
	}
	if m.rawSum, err = parseCell(MetaFile, lines[metaRawSum], values[metaRawSum]); err != nil {
		return meta{}, false, err
	}
	if m.normalized, err = strconv.ParseBool(values[metaNormalized]); err != nil {
		return meta{}, false, fmt.Errorf("%w: %s has invalid %s %q", domain.ErrMalformedRecord, MetaFile, metaNormalized, values[metaNormalized])
	}
	return m, true, nil
}

// ReadWeights reads weight.csv. The raw sum and normalization flag come from
// measures_meta.csv; without it the stored values are taken as-is and RawSum
// is their sum.
func (s *Store) ReadWeights() (measures.Weights, error) {
	vec, err := s.readVector(WeightsFile, weightColumn)
	if err != nil {
		return measures.Weights{}, err
	}
	md, found, err := s.readMeta()
	if err != nil {
		return measures.Weights{}, err
	}
	if !found {
		return measures.Weights{Vector: vec, RawSum: vec.Sum()}, nil
	}
	return measures.Weights{Vector: vec, RawSum: md.rawSum, Normalized: md.normalized}, nil
}

// ReadCovariance reads covariance.csv. Row labels must repeat the column
// headers in the same order.
func (s *Store) ReadCovariance() (measures.CovarianceMatrix, error) {
	rows, err := s.readAll(CovarianceFile)
	if err != nil {
		return measures.CovarianceMatrix{}, err
	}
	header := rows[0]
	if len(header) < 2 || !indexColumns[strings.TrimSpace(header[0])] {
		return measures.CovarianceMatrix{}, fmt.Errorf("%w: %s header must start with %s", domain.ErrMalformedRecord, CovarianceFile, assetColumn)
	}
	assets := make([]string, len(header)-1)
	for i, h := range header[1:] {
		assets[i] = strings.TrimSpace(h)
	}
	if len(rows)-1 != len(assets) {
		return measures.CovarianceMatrix{}, fmt.Errorf("%w: %s has %d rows for %d columns", domain.ErrMalformedRecord, CovarianceFile, len(rows)-1, len(assets))
	}

	values := make([][]float64, len(assets))
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(assets)+1 {
			return measures.CovarianceMatrix{}, fmt.Errorf("%w: %s line %d has %d fields", domain.ErrMalformedRecord, CovarianceFile, line, len(row))
		}
		if label := strings.TrimSpace(row[0]); label != assets[i] {
			return measures.CovarianceMatrix{}, fmt.Errorf("%w: %s row %d is labelled %s, expected %s", domain.ErrMalformedRecord, CovarianceFile, line, label, assets[i])
		}
		values[i] = make([]float64, len(assets))
		for j, cell := range row[1:] {
			v, err := parseCell(CovarianceFile, line, cell)
			if err != nil {
				return measures.CovarianceMatrix{}, err
			}
			values[i][j] = v
		}
	}

	cov, err := measures.NewCovarianceMatrix(assets, values)
	if err != nil {
		return measures.CovarianceMatrix{}, fmt.Errorf("%s: %w", CovarianceFile, err)
	}
	return cov, nil
}

// ReadRiskAversion reads risk_aversion.csv.
func (s *Store) ReadRiskAversion() (float64, error) {
	rows, err := s.readAll(RiskAversionFile)
	if err != nil {
		return 0, err
	}
	if len(rows) != 2 || len(rows[0]) != 1 || strings.TrimSpace(rows[0][0]) != qColumn || len(rows[1]) != 1 {
		return 0, fmt.Errorf("%w: %s must hold a single %s value", domain.ErrMalformedRecord, RiskAversionFile, qColumn)
	}
	return parseCell(RiskAversionFile, 2, rows[1][0])
}

// ReadMeasures reads returns, covariance and weights.
func (s *Store) ReadMeasures() (measures.Measures, error) {
	returns, err := s.ReadReturns()
	if err != nil {
		return measures.Measures{}, err
	}
	cov, err := s.ReadCovariance()
	if err != nil {
		return measures.Measures{}, err
	}
	weights, err := s.ReadWeights()
	if err != nil {
		return measures.Measures{}, err
	}
	md, _, err := s.readMeta()
	if err != nil {
		return measures.Measures{}, err
	}
	return measures.Measures{Returns: returns, Covariance: cov, Weights: weights, Policy: md.policy}, nil
}
