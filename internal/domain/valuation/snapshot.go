package valuation

import (
	"context"
	"fmt"

	"stockval/pkg/logger"
)

// calculateStocks is the stock snapshot step: for every stock-managed product
// it records the warehouse's net quantity as of the cutoff instant.
//
// Negative physical stock (external-channel overselling) is valued as zero
// on-hand; such products are flagged and deliberately left unvalued instead
// of being forced to an arbitrary number.
func (s *Service) calculateStocks(ctx context.Context, report *Report) error {
	levels, err := s.facts.StockLevels(ctx, report.WarehouseID, report.UntilDate)
	if err != nil {
		return fmt.Errorf("calculate stock levels: %w", err)
	}

	stocks := make([]TempStock, 0, len(levels))
	for _, level := range levels {
		ts := TempStock{
			ReportID:  report.ID,
			ProductID: level.ProductID,
			Stock:     level.Quantity,
		}
		if level.Quantity.IsNegative() {
			ts.Stock = 0
			ts.Shortfall = true
		}
		stocks = append(stocks, ts)
	}

	if err := s.scratch.SaveStocks(ctx, stocks); err != nil {
		return fmt.Errorf("save stock snapshot: %w", err)
	}

	logger.Debug(ctx, "stock snapshot calculated",
		"report_id", report.ID,
		"products", len(stocks),
	)

	return nil
}
