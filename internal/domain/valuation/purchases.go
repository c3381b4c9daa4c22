package valuation

import (
	"context"
	"fmt"
	"time"

	"stockval/internal/core/id"
	"stockval/pkg/logger"
)

// collectPurchases is the purchase collection step. The report period runs
// from the previous permanent report's cutoff (exclusive; absent on the first
// report) to this report's cutoff (inclusive). Two kinds of lots are staged:
// actual priced purchases inside the period, and one synthetic carry-over lot
// per product of the previous report, representing its ending inventory.
func (s *Service) collectPurchases(ctx context.Context, report *Report) error {
	previous, err := s.reports.NewestPermanent(ctx, report.WarehouseID)
	if err != nil {
		return fmt.Errorf("find previous report: %w", err)
	}

	var from *time.Time
	if previous != nil {
		from = &previous.UntilDate
	}

	lots, err := s.facts.PurchaseLots(ctx, report.WarehouseID, from, report.UntilDate)
	if err != nil {
		return fmt.Errorf("collect purchase lots: %w", err)
	}

	purchases := make([]TempPurchase, 0, len(lots))
	for _, lot := range lots {
		lineID := lot.ReceiptLineID
		purchases = append(purchases, TempPurchase{
			ID:            id.New(),
			ReportID:      report.ID,
			ProductID:     lot.ProductID,
			Type:          PurchaseTypePurchase,
			Date:          lot.Date,
			UnitPriceNet:  lot.UnitPriceNet,
			Quantity:      lot.Quantity,
			ReceiptLineID: &lineID,
		})
	}

	if previous != nil {
		carryOvers, err := s.carryOverLots(ctx, report, previous)
		if err != nil {
			return err
		}
		purchases = append(purchases, carryOvers...)
	}

	if err := s.scratch.SavePurchases(ctx, purchases); err != nil {
		return fmt.Errorf("save purchase lots: %w", err)
	}

	logger.Debug(ctx, "purchase lots collected",
		"report_id", report.ID,
		"lots", len(purchases),
		"has_previous", previous != nil,
	)

	return nil
}

// carryOverLots builds one synthetic lot per product of the previous report.
// The lot is dated one second before this report's cutoff so it sorts
// deterministically against same-day actual purchases: oldest under FIFO
// ordering relative history, most recent under LIFO.
func (s *Service) carryOverLots(ctx context.Context, report *Report, previous *Report) ([]TempPurchase, error) {
	rows, err := s.reports.RowsByReport(ctx, previous.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous report rows: %w", err)
	}

	date := report.UntilDate.Add(-time.Second)

	lots := make([]TempPurchase, 0, len(rows))
	for _, row := range rows {
		quantity := row.Stock
		if quantity.IsNegative() {
			quantity = 0
		}

		// Price per unit of the carried inventory. Rows without a positive
		// stock (or without a determinable valuation) fall back to the
		// previous average purchase price.
		price := row.AveragePurchasePriceNet
		if row.Stock.IsPositive() && row.ValuationNet != nil {
			price = row.ValuationNet.Div(row.Stock.Decimal())
		}

		rowID := row.ID
		lots = append(lots, TempPurchase{
			ID:             id.New(),
			ReportID:       report.ID,
			ProductID:      row.ProductID,
			Type:           PurchaseTypeCarryOver,
			Date:           date,
			UnitPriceNet:   price,
			Quantity:       quantity,
			CarryOverRowID: &rowID,
		})
	}

	return lots, nil
}
