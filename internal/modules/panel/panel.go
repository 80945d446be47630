// Package panel builds the canonical long-format price panel keyed by (asset, date).
package panel

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
)

// DateLayout is the calendar date format used in every tabular artifact.
const DateLayout = "2006-01-02"

// Record is one canonical observation of an asset on a calendar date.
type Record struct {
	AssetID string
	Date    time.Time
	Price   float64
	Volume  float64
}

type span struct {
	start, end int
}

// Panel is the immutable canonical price panel, sorted by asset then date with
// at most one record per (asset, date). Accessors return copies.
type Panel struct {
	records []Record
	assets  []string
	dates   []time.Time
	spans   map[string]span
}

// New sorts the records by (asset, date) and indexes them. A repeated
// (asset, date) pair is rejected as a malformed record.
func New(records []Record) (*Panel, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: panel has no records", domain.ErrInsufficientData)
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AssetID != sorted[j].AssetID {
			return sorted[i].AssetID < sorted[j].AssetID
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	p := &Panel{
		records: sorted,
		spans:   make(map[string]span),
	}

	seenDates := make(map[time.Time]struct{})
	for i, rec := range sorted {
		if i > 0 && sorted[i-1].AssetID == rec.AssetID && sorted[i-1].Date.Equal(rec.Date) {
			return nil, fmt.Errorf("%w: duplicate observation for %s on %s",
				domain.ErrMalformedRecord, rec.AssetID, rec.Date.Format(DateLayout))
		}
		s, ok := p.spans[rec.AssetID]
		if !ok {
			p.assets = append(p.assets, rec.AssetID)
			s.start = i
		}
		s.end = i + 1
		p.spans[rec.AssetID] = s

		if _, ok := seenDates[rec.Date]; !ok {
			seenDates[rec.Date] = struct{}{}
			p.dates = append(p.dates, rec.Date)
		}
	}
	sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })

	return p, nil
}

// Len returns the number of records.
func (p *Panel) Len() int {
	return len(p.records)
}

// Assets returns the asset identifiers in ascending order.
func (p *Panel) Assets() []string {
	out := make([]string, len(p.assets))
	copy(out, p.assets)
	return out
}

// Dates returns every distinct date observed for any asset, ascending.
func (p *Panel) Dates() []time.Time {
	out := make([]time.Time, len(p.dates))
	copy(out, p.dates)
	return out
}

// Records returns all records in (asset, date) order.
func (p *Panel) Records() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Series returns the chronological records of one asset, or nil when the asset
// is not in the panel.
func (p *Panel) Series(assetID string) []Record {
	s, ok := p.spans[assetID]
	if !ok {
		return nil
	}
	out := make([]Record, s.end-s.start)
	copy(out, p.records[s.start:s.end])
	return out
}
