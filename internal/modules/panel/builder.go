package panel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/rs/zerolog"
)

// RawRecord is one row of a raw source file, keyed by its header names.
type RawRecord struct {
	Source string // File the row came from
	Line   int    // 1-based line (or spreadsheet row) number
	Fields map[string]string
}

// Canonical field names and the raw header synonyms that map onto them, in
// lookup order. Headers are compared lowercased and trimmed.
var fieldSynonyms = []struct {
	field    string
	synonyms []string
}{
	{"asset_id", []string{"asset_id", "name", "ticker", "symbol", "asset"}},
	{"date", []string{"date"}},
	{"price", []string{"price", "open"}},
	{"volume", []string{"volume"}},
}

var dateLayouts = []string{DateLayout, "2006/01/02", time.RFC3339}

// Builder normalizes raw rows into the canonical panel.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a panel builder.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{
		log: log.With().Str("component", "panel_builder").Logger(),
	}
}

// Build keeps asset, date, price (opening price) and volume from each raw row,
// drops every other column, and returns the sorted panel. Any row missing one of
// the required fields, or holding an unparseable one, fails the whole build.
func (b *Builder) Build(raw []RawRecord) (*Panel, error) {
	records := make([]Record, 0, len(raw))
	for _, row := range raw {
		rec, err := normalize(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	p, err := New(records)
	if err != nil {
		return nil, err
	}

	b.log.Info().
		Int("records", p.Len()).
		Int("assets", len(p.assets)).
		Int("dates", len(p.dates)).
		Msg("Built price panel")

	return p, nil
}

func normalize(row RawRecord) (Record, error) {
	fields := make(map[string]string, len(row.Fields))
	for k, v := range row.Fields {
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	values := make(map[string]string, len(fieldSynonyms))
	for _, fs := range fieldSynonyms {
		for _, syn := range fs.synonyms {
			if v, ok := fields[syn]; ok && v != "" {
				values[fs.field] = v
				break
			}
		}
		if _, ok := values[fs.field]; !ok {
			return Record{}, malformed(row, "missing %s", fs.field)
		}
	}

	date, err := parseDate(values["date"])
	if err != nil {
		return Record{}, malformed(row, "invalid date %q", values["date"])
	}

	price, err := parseAmount(values["price"])
	if err != nil {
		return Record{}, malformed(row, "invalid price %q", values["price"])
	}

	volume, err := parseAmount(values["volume"])
	if err != nil {
		return Record{}, malformed(row, "invalid volume %q", values["volume"])
	}

	return Record{
		AssetID: values["asset_id"],
		Date:    date,
		Price:   price,
		Volume:  volume,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("amount out of range: %g", v)
	}
	return v, nil
}

func malformed(row RawRecord, format string, args ...interface{}) error {
	where := fmt.Sprintf("%s:%d", row.Source, row.Line)
	if row.Source == "" {
		where = fmt.Sprintf("row %d", row.Line)
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrMalformedRecord, where, fmt.Sprintf(format, args...))
}
