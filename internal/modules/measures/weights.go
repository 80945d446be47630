package measures

import (
	"fmt"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/panel"
)

// CalculateWeights proxies each asset's allocation weight by its average share
// of aggregate daily trading volume, averaged over the dates the asset trades.
// On an unbalanced panel the shares do not sum to one; the raw sum is returned
// in Weights.RawSum and values are rescaled only when normalize is set.
func CalculateWeights(p *panel.Panel, normalize bool) (Weights, error) {
	totals := make(map[time.Time]float64)
	for _, r := range p.Records() {
		totals[r.Date] += r.Volume
	}
	for _, d := range p.Dates() {
		if totals[d] == 0 {
			return Weights{}, fmt.Errorf("%w: aggregate volume on %s is zero",
				domain.ErrDivisionByZero, d.Format(panel.DateLayout))
		}
	}

	assets := p.Assets()
	values := make([]float64, len(assets))
	for i, asset := range assets {
		series := p.Series(asset)
		var share float64
		for _, r := range series {
			share += r.Volume / totals[r.Date]
		}
		values[i] = share / float64(len(series))
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	if normalize {
		for i := range values {
			values[i] /= sum
		}
	}

	vec, err := NewVector(assets, values)
	if err != nil {
		return Weights{}, err
	}
	return Weights{Vector: vec, RawSum: sum, Normalized: normalize}, nil
}
