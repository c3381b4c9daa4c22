package valuation

import (
	"context"
	"fmt"
	"sort"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
	"stockval/pkg/logger"
)

// rateStocks is the costing step: every product's snapshot stock is matched
// against its candidate lots per the report's costing method, producing the
// valuation and the per-lot consumption record.
func (s *Service) rateStocks(ctx context.Context, report *Report) error {
	stocks, err := s.scratch.ListStocks(ctx, report.ID)
	if err != nil {
		return fmt.Errorf("list scratch stocks: %w", err)
	}
	purchases, err := s.scratch.ListPurchases(ctx, report.ID)
	if err != nil {
		return fmt.Errorf("list scratch purchases: %w", err)
	}

	byProduct := make(map[id.ID][]TempPurchase)
	for _, p := range purchases {
		byProduct[p.ProductID] = append(byProduct[p.ProductID], p)
	}

	rated := make([]TempPurchase, 0, len(purchases))
	undetermined := 0
	for i := range stocks {
		result := rate(report.Method, stocks[i], byProduct[stocks[i].ProductID], s.decimals)

		stocks[i].ValuationNet = result.ValuationNet
		stocks[i].SurplusStock = result.SurplusStock
		stocks[i].SurplusPriceNet = result.SurplusPriceNet
		if result.ValuationNet == nil {
			undetermined++
		}

		rated = append(rated, result.Lots...)
	}

	if err := s.scratch.UpdateStocks(ctx, stocks); err != nil {
		return fmt.Errorf("update rated stocks: %w", err)
	}
	if err := s.scratch.UpdatePurchaseUsage(ctx, rated); err != nil {
		return fmt.Errorf("update lot consumption: %w", err)
	}

	if undetermined > 0 {
		logger.Warn(ctx, "products left without valuation",
			"report_id", report.ID,
			"count", undetermined,
		)
	}

	return nil
}

// ratingResult is the outcome of valuing one product's stock against its
// candidate lots.
type ratingResult struct {
	// ValuationNet is nil when the valuation is indeterminate.
	ValuationNet *types.Money

	SurplusStock    types.Quantity
	SurplusPriceNet types.Money

	// Lots carries the input lots with QuantityUsed filled in.
	Lots []TempPurchase
}

// orderLots sorts candidate lots for matching: FIFO by ascending date, LIFO by
// descending date. Same-date lots are ordered by ascending unit price, a
// stable deterministic tie-break with no further business meaning.
func orderLots(method CostingMethod, lots []TempPurchase) []TempPurchase {
	ordered := make([]TempPurchase, len(lots))
	copy(ordered, lots)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Date.Equal(b.Date) {
			if method == MethodLIFO {
				return a.Date.After(b.Date)
			}
			return a.Date.Before(b.Date)
		}
		return a.UnitPriceNet.LessThan(b.UnitPriceNet)
	})

	return ordered
}

// consumeLots folds over lots in order, consuming up to stock and filling in
// QuantityUsed. Returns the accumulated exact valuation of the consumed part
// and the unmatched remainder.
func consumeLots(stock types.Quantity, lots []TempPurchase) (types.Money, types.Quantity, []TempPurchase, bool) {
	remaining := stock
	valuation := types.Zero()

	out := make([]TempPurchase, len(lots))
	copy(out, lots)

	for i := range out {
		out[i].QuantityUsed = 0
		if remaining <= 0 {
			continue
		}
		if out[i].Quantity.IsNegative() {
			// Inconsistent source data: leave the product unvalued rather
			// than forcing a number.
			return types.Zero(), 0, out, false
		}

		consumed := types.MinQuantity(remaining, out[i].Quantity)
		valuation = valuation.Add(consumed.Decimal().Mul(out[i].UnitPriceNet))
		out[i].QuantityUsed = consumed
		remaining -= consumed
	}

	return valuation, remaining, out, true
}

// rateOrdered values stock by FIFO or LIFO matching. Lots exhausted before the
// stock is covered leave a surplus, valued at surplusPrice (the fallback chain
// result computed by the average price step).
func rateOrdered(method CostingMethod, stock types.Quantity, surplusPrice types.Money, lots []TempPurchase, decimals int32) ratingResult {
	ordered := orderLots(method, lots)

	valuation, remaining, rated, ok := consumeLots(stock, ordered)
	if !ok {
		return ratingResult{Lots: rated, SurplusPriceNet: surplusPrice}
	}

	result := ratingResult{
		Lots:            rated,
		SurplusPriceNet: surplusPrice,
	}

	if remaining > 0 {
		result.SurplusStock = remaining
		valuation = valuation.Add(remaining.Decimal().Mul(surplusPrice))
	}

	rounded := types.RoundMoney(valuation, decimals)
	result.ValuationNet = &rounded
	return result
}

// rateAverage values stock at the weighted average price. Lot consumption is
// still recorded (date-ascending, capped at the stock on hand) so the audit
// trail invariant holds: total used never exceeds total purchased and equals
// min(stock, total lot quantity).
func rateAverage(stock types.Quantity, averagePrice types.Money, lots []TempPurchase, decimals int32) ratingResult {
	ordered := orderLots(MethodFIFO, lots)

	_, remaining, rated, ok := consumeLots(stock, ordered)
	if !ok {
		return ratingResult{Lots: rated, SurplusPriceNet: averagePrice}
	}

	result := ratingResult{
		Lots:            rated,
		SurplusPriceNet: averagePrice,
	}

	if remaining > 0 {
		result.SurplusStock = remaining
	}

	rounded := types.RoundMoney(stock.Decimal().Mul(averagePrice), decimals)
	result.ValuationNet = &rounded
	return result
}

// rate dispatches to the method-specific valuation. Products flagged as
// shortfall (negative physical snapshot) are left without a valuation figure.
func rate(method CostingMethod, ts TempStock, lots []TempPurchase, decimals int32) ratingResult {
	if ts.Shortfall {
		rated := make([]TempPurchase, len(lots))
		copy(rated, lots)
		for i := range rated {
			rated[i].QuantityUsed = 0
		}
		return ratingResult{Lots: rated, SurplusPriceNet: ts.AveragePriceNet}
	}

	if method == MethodAverage {
		return rateAverage(ts.Stock, ts.AveragePriceNet, lots, decimals)
	}
	return rateOrdered(method, ts.Stock, ts.AveragePriceNet, lots, decimals)
}
