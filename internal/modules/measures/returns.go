package measures

import (
	"fmt"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/panel"
)

// CalculateReturns computes one holding-period return per asset: buying at the
// first observed price and selling at the last, (pN - p0) / p0.
func CalculateReturns(p *panel.Panel) (Vector, error) {
	assets := p.Assets()
	values := make([]float64, len(assets))

	for i, asset := range assets {
		series := p.Series(asset)
		first := series[0].Price
		last := series[len(series)-1].Price
		if first == 0 {
			return Vector{}, fmt.Errorf("%w: undefined return for %s, first price on %s is zero",
				domain.ErrDivisionByZero, asset, series[0].Date.Format(panel.DateLayout))
		}
		values[i] = (last - first) / first
	}

	return NewVector(assets, values)
}
