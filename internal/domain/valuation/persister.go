package valuation

import (
	"context"
	"fmt"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
	"stockval/pkg/logger"
)

// persist is the final generation step: it turns the scratch state into the
// permanent, auditable report rows and lots, captures the current product
// display snapshot and discards all scratch state.
func (s *Service) persist(ctx context.Context, report *Report) error {
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

	productIDs := make([]id.ID, 0, len(stocks))
	for _, ts := range stocks {
		productIDs = append(productIDs, ts.ProductID)
	}
	catalog, err := s.loadCatalog(ctx, productIDs)
	if err != nil {
		return err
	}

	rows := make([]ReportRow, 0, len(stocks))
	lots := make([]ReportPurchase, 0, len(purchases))

	for _, ts := range stocks {
		number, name, options := catalog.display(ts.ProductID)
		taxRate := catalog.taxRate(ts.ProductID)

		row := ReportRow{
			ID:                      id.New(),
			ReportID:                report.ID,
			ProductID:               ts.ProductID,
			ProductNumber:           number,
			ProductName:             name,
			VariantOptions:          options,
			Stock:                   ts.Stock,
			TaxRate:                 taxRate,
			AveragePurchasePriceNet: ts.AveragePriceNet,
			SurplusStock:            ts.SurplusStock,
			SurplusPurchasePriceNet: ts.SurplusPriceNet,
		}

		if ts.ValuationNet != nil {
			net := *ts.ValuationNet
			gross := types.RoundMoney(net.Mul(types.NewMoney(1).Add(taxRate)), s.decimals)
			row.ValuationNet = &net
			row.ValuationGross = &gross
		}

		rows = append(rows, row)
		lots = append(lots, s.rowPurchases(report, row, ts, byProduct[ts.ProductID])...)
	}

	if err := s.reports.SaveRows(ctx, rows); err != nil {
		return fmt.Errorf("save report rows: %w", err)
	}
	if err := s.reports.SavePurchases(ctx, lots); err != nil {
		return fmt.Errorf("save report purchases: %w", err)
	}
	if err := s.scratch.Purge(ctx, report.ID); err != nil {
		return fmt.Errorf("purge scratch state: %w", err)
	}

	logger.Info(ctx, "valuation report written",
		"report_id", report.ID,
		"rows", len(rows),
		"lots", len(lots),
	)

	return nil
}

// rowPurchases converts the consumed scratch lots of one product into
// permanent audit lots, adding a synthetic surplus lot when stock exceeded
// all known acquisitions.
func (s *Service) rowPurchases(report *Report, row ReportRow, ts TempStock, consumed []TempPurchase) []ReportPurchase {
	lots := make([]ReportPurchase, 0, len(consumed)+1)

	for _, p := range consumed {
		if !p.QuantityUsed.IsPositive() {
			continue
		}
		lots = append(lots, ReportPurchase{
			ID:                       id.New(),
			ReportRowID:              row.ID,
			Type:                     p.Type,
			Date:                     p.Date,
			UnitPriceNet:             p.UnitPriceNet,
			Quantity:                 p.Quantity,
			QuantityUsedForValuation: p.QuantityUsed,
			ReceiptLineID:            p.ReceiptLineID,
			CarryOverRowID:           p.CarryOverRowID,
		})
	}

	if ts.SurplusStock.IsPositive() && ts.ValuationNet != nil {
		lots = append(lots, ReportPurchase{
			ID:                       id.New(),
			ReportRowID:              row.ID,
			Type:                     PurchaseTypeSurplusStock,
			Date:                     report.UntilDate,
			UnitPriceNet:             ts.SurplusPriceNet,
			Quantity:                 ts.SurplusStock,
			QuantityUsedForValuation: ts.SurplusStock,
		})
	}

	return lots
}
