package pricing

import (
	"context"
	"sync/atomic"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/logger"
)

// DerivedCalculator builds business-defined instruments from raw source prices.
type DerivedCalculator struct {
	repo     drepo.DerivedRepository
	metrics  drepo.Metrics
	logger   *logger.Logger
	degraded atomic.Bool
}

func NewDerivedCalculator(repo drepo.DerivedRepository, m drepo.Metrics, l *logger.Logger) *DerivedCalculator {
	return &DerivedCalculator{repo: repo, metrics: m, logger: l.With("derived")}
}

// Definitions loads the visible definitions; a failing store yields none.
func (d *DerivedCalculator) Definitions(ctx context.Context) []models.DerivedDefinition {
	defs, err := d.repo.ListVisibleDerived(ctx)
	if err != nil {
		d.metrics.RecordError("derived_unavailable")
		if d.degraded.CompareAndSwap(false, true) {
			d.logger.Warn("derived definition store unavailable", logger.Error(err))
		}
		return nil
	}
	if d.degraded.CompareAndSwap(true, false) {
		d.logger.Info("derived definition store recovered", logger.Int("definitions", len(defs)))
	}
	return defs
}

// Calculate evaluates every definition whose two legs have a source in tick.
// Legs read the raw upstream price, never a coefficient-adjusted one.
func Calculate(defs []models.DerivedDefinition, tick models.CanonicalTick) []models.Quote {
	out := make([]models.Quote, 0, len(defs))
	for _, def := range defs {
		buySrc, ok := tick[def.BuyLeg.SourceCode]
		if !ok {
			continue
		}
		sellSrc, ok := tick[def.SellLeg.SourceCode]
		if !ok {
			continue
		}

		buy := legValue(def.BuyLeg, buySrc)
		sell := legValue(def.SellLeg, sellSrc)

		out = append(out, models.Quote{
			Code:           def.Code,
			Name:           def.Name,
			Category:       def.Category,
			RawBuy:         buy,
			RawSell:        sell,
			CalculatedBuy:  buy,
			CalculatedSell: sell,
			Direction: models.Direction{
				BuyDir:  sideDir(buySrc, def.BuyLeg.SourceSide),
				SellDir: sideDir(sellSrc, def.SellLeg.SourceSide),
			},
			Visible:   def.Visible,
			Order:     def.Order,
			IsDerived: true,
		})
	}
	return out
}

func legValue(leg models.Leg, src models.NormalizedQuote) float64 {
	raw := src.Sell
	if leg.SourceSide == models.SideBuy {
		raw = src.Buy
	}
	return Linear(raw, leg.Multiplier, leg.Addition)
}

func sideDir(src models.NormalizedQuote, side models.Side) string {
	if side == models.SideBuy {
		return src.Direction.BuyDir
	}
	return src.Direction.SellDir
}
