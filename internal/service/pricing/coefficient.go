package pricing

import (
	"context"
	"sync/atomic"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/logger"

	"github.com/shopspring/decimal"
)

// Linear returns value*multiplier + addition using decimal arithmetic so that
// configured coefficients like 1.01 do not pick up binary rounding noise.
func Linear(value, multiplier, addition float64) float64 {
	v := decimal.NewFromFloat(value).
		Mul(decimal.NewFromFloat(multiplier)).
		Add(decimal.NewFromFloat(addition))
	return v.InexactFloat64()
}

// Coefficients is the resolved coefficient table for one tick.
type Coefficients map[models.CoefficientKey]models.Coefficient

// Apply returns the calculated price for code and side.
func (c Coefficients) Apply(code string, side models.Side, raw float64) float64 {
	coeff, ok := c[models.CoefficientKey{Code: code, Side: side}]
	if !ok {
		return raw
	}
	return Linear(raw, coeff.Multiplier, coeff.Addition)
}

// Display returns the presentation attributes for a raw instrument: the buy
// side coefficient wins, then the sell side, then defaults.
func (c Coefficients) Display(code string) (name, category string, order int, visible bool) {
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		if coeff, ok := c[models.CoefficientKey{Code: code, Side: side}]; ok {
			name = coeff.Name
			if name == "" {
				name = code
			}
			return name, coeff.Category, coeff.Order, coeff.Visible
		}
	}
	return code, "", models.DefaultOrder, true
}

// CoefficientResolver loads the coefficient table each tick. When the store
// fails it returns an empty table and logs once per outage.
type CoefficientResolver struct {
	repo     drepo.CoefficientRepository
	metrics  drepo.Metrics
	logger   *logger.Logger
	degraded atomic.Bool
}

func NewCoefficientResolver(repo drepo.CoefficientRepository, m drepo.Metrics, l *logger.Logger) *CoefficientResolver {
	return &CoefficientResolver{repo: repo, metrics: m, logger: l.With("coefficients")}
}

func (r *CoefficientResolver) Resolve(ctx context.Context) Coefficients {
	list, err := r.repo.ListCoefficients(ctx)
	if err != nil {
		r.metrics.RecordError("coefficients_unavailable")
		if r.degraded.CompareAndSwap(false, true) {
			r.logger.Warn("coefficient store unavailable, passing raw prices through", logger.Error(err))
		}
		return Coefficients{}
	}
	if r.degraded.CompareAndSwap(true, false) {
		r.logger.Info("coefficient store recovered", logger.Int("coefficients", len(list)))
	}

	out := make(Coefficients, len(list))
	for _, c := range list {
		if !c.Side.Valid() || c.Code == "" {
			continue
		}
		out[c.Key()] = c
	}
	return out
}

// Degraded reports whether the last Resolve failed.
func (r *CoefficientResolver) Degraded() bool { return r.degraded.Load() }

// RawQuotes applies coefficients to every instrument of the tick.
func RawQuotes(tick models.CanonicalTick, coeffs Coefficients) []models.Quote {
	quotes := make([]models.Quote, 0, len(tick))
	for code, n := range tick {
		name, category, order, visible := coeffs.Display(code)
		quotes = append(quotes, models.Quote{
			Code:           code,
			Name:           name,
			Category:       category,
			RawBuy:         n.Buy,
			RawSell:        n.Sell,
			CalculatedBuy:  coeffs.Apply(code, models.SideBuy, n.Buy),
			CalculatedSell: coeffs.Apply(code, models.SideSell, n.Sell),
			Direction:      n.Direction,
			Visible:        visible,
			Order:          order,
		})
	}
	return quotes
}
