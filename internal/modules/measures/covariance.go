package measures

import (
	"fmt"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/aristath/riskaversion/internal/modules/panel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CalculateCovariance pivots the panel to one price column per asset and
// computes the unbiased sample covariance (n-1 denominator) of every pair of
// price series. Every entry needs at least two aligned observations.
func CalculateCovariance(p *panel.Panel, policy MissingDatePolicy) (CovarianceMatrix, error) {
	switch policy {
	case PolicyIntersect, "":
		return intersectCovariance(p)
	case PolicyPairwise:
		return pairwiseCovariance(p)
	default:
		return CovarianceMatrix{}, fmt.Errorf("unknown missing date policy: %s", policy)
	}
}

// pricesByDate is the wide pivot: asset -> date -> price.
func pricesByDate(p *panel.Panel) map[string]map[time.Time]float64 {
	wide := make(map[string]map[time.Time]float64)
	for _, asset := range p.Assets() {
		series := p.Series(asset)
		prices := make(map[time.Time]float64, len(series))
		for _, r := range series {
			prices[r.Date] = r.Price
		}
		wide[asset] = prices
	}
	return wide
}

func intersectCovariance(p *panel.Panel) (CovarianceMatrix, error) {
	assets := p.Assets()
	wide := pricesByDate(p)

	var common []time.Time
	for _, d := range p.Dates() {
		observed := true
		for _, asset := range assets {
			if _, ok := wide[asset][d]; !ok {
				observed = false
				break
			}
		}
		if observed {
			common = append(common, d)
		}
	}

	if len(common) < 2 {
		return CovarianceMatrix{}, fmt.Errorf("%w: %d dates observed for all %d assets, need at least 2",
			domain.ErrInsufficientData, len(common), len(assets))
	}

	x := mat.NewDense(len(common), len(assets), nil)
	for r, d := range common {
		for c, asset := range assets {
			x.Set(r, c, wide[asset][d])
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	return newCovarianceFromSym(assets, &cov), nil
}

func pairwiseCovariance(p *panel.Panel) (CovarianceMatrix, error) {
	assets := p.Assets()
	dates := p.Dates()
	wide := pricesByDate(p)
	n := len(assets)

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var xs, ys []float64
			for _, d := range dates {
				pi, okI := wide[assets[i]][d]
				pj, okJ := wide[assets[j]][d]
				if okI && okJ {
					xs = append(xs, pi)
					ys = append(ys, pj)
				}
			}
			if len(xs) < 2 {
				return CovarianceMatrix{}, fmt.Errorf("%w: %s and %s share %d dates, need at least 2",
					domain.ErrInsufficientData, assets[i], assets[j], len(xs))
			}
			cov.SetSym(i, j, stat.Covariance(xs, ys, nil))
		}
	}

	return newCovarianceFromSym(assets, cov), nil
}
