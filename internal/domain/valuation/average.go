package valuation

import (
	"context"
	"fmt"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
	"stockval/pkg/logger"
)

// productCatalog resolves product attributes with variant-parent fallback.
type productCatalog struct {
	facts map[id.ID]ProductFact
}

// taxRate returns the product's tax rate, inheriting from the variant parent
// when the product has none. Defaults to zero.
func (c *productCatalog) taxRate(productID id.ID) types.Money {
	fact, ok := c.facts[productID]
	if !ok {
		return types.Zero()
	}
	if !fact.TaxRate.IsZero() {
		return fact.TaxRate
	}
	if fact.ParentID != nil {
		if parent, ok := c.facts[*fact.ParentID]; ok {
			return parent.TaxRate
		}
	}
	return fact.TaxRate
}

// purchasePrice returns the configured purchase price of the product or,
// failing that, of its variant parent.
func (c *productCatalog) purchasePrice(productID id.ID) *types.Money {
	fact, ok := c.facts[productID]
	if !ok {
		return nil
	}
	if fact.PurchasePriceNet != nil {
		return fact.PurchasePriceNet
	}
	if fact.ParentID != nil {
		if parent, ok := c.facts[*fact.ParentID]; ok {
			return parent.PurchasePriceNet
		}
	}
	return nil
}

func (c *productCatalog) display(productID id.ID) (number, name, options string) {
	if fact, ok := c.facts[productID]; ok {
		return fact.Number, fact.Name, fact.VariantOptions
	}
	return "", "", ""
}

// loadCatalog fetches product facts for the given products and their variant
// parents in a second pass.
func (s *Service) loadCatalog(ctx context.Context, productIDs []id.ID) (*productCatalog, error) {
	facts, err := s.facts.ProductFacts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load product facts: %w", err)
	}

	var parentIDs []id.ID
	for _, fact := range facts {
		if fact.ParentID != nil {
			if _, ok := facts[*fact.ParentID]; !ok {
				parentIDs = append(parentIDs, *fact.ParentID)
			}
		}
	}
	if len(parentIDs) > 0 {
		parents, err := s.facts.ProductFacts(ctx, parentIDs)
		if err != nil {
			return nil, fmt.Errorf("load parent product facts: %w", err)
		}
		for pid, fact := range parents {
			facts[pid] = fact
		}
	}

	return &productCatalog{facts: facts}, nil
}

// calculateAveragePrices is the average price step: per product, the
// quantity-weighted mean of all positive-quantity lots, rounded to currency
// precision. Products without qualifying lots fall back, in order, to the
// previous permanent report's average price, the product's configured
// purchase price, the variant parent's configured purchase price, and zero.
func (s *Service) calculateAveragePrices(ctx context.Context, report *Report) error {
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

	previousAverages, err := s.previousAveragePrices(ctx, report)
	if err != nil {
		return err
	}

	productIDs := make([]id.ID, 0, len(stocks))
	for _, ts := range stocks {
		productIDs = append(productIDs, ts.ProductID)
	}
	catalog, err := s.loadCatalog(ctx, productIDs)
	if err != nil {
		return err
	}

	for i := range stocks {
		stocks[i].AveragePriceNet = s.averagePrice(stocks[i].ProductID, byProduct[stocks[i].ProductID], previousAverages, catalog)
	}

	if err := s.scratch.UpdateStocks(ctx, stocks); err != nil {
		return fmt.Errorf("update average prices: %w", err)
	}

	logger.Debug(ctx, "average purchase prices calculated",
		"report_id", report.ID,
		"products", len(stocks),
	)

	return nil
}

// averagePrice computes the weighted average over positive-quantity lots.
// Zero-quantity carry-over lots are excluded, which also rules out division
// by zero.
func (s *Service) averagePrice(productID id.ID, lots []TempPurchase, previous map[id.ID]types.Money, catalog *productCatalog) types.Money {
	totalQuantity := types.Quantity(0)
	totalValue := types.Zero()
	for _, lot := range lots {
		if !lot.Quantity.IsPositive() {
			continue
		}
		totalQuantity += lot.Quantity
		totalValue = totalValue.Add(lot.Quantity.Decimal().Mul(lot.UnitPriceNet))
	}

	if totalQuantity.IsPositive() {
		return types.RoundMoney(totalValue.Div(totalQuantity.Decimal()), s.decimals)
	}

	if price, ok := previous[productID]; ok {
		return price
	}
	if price := catalog.purchasePrice(productID); price != nil {
		return *price
	}
	return types.Zero()
}

// previousAveragePrices maps product id to the average price recorded by the
// most recent permanent report, if any.
func (s *Service) previousAveragePrices(ctx context.Context, report *Report) (map[id.ID]types.Money, error) {
	previous, err := s.reports.NewestPermanent(ctx, report.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("find previous report: %w", err)
	}
	if previous == nil {
		return map[id.ID]types.Money{}, nil
	}

	rows, err := s.reports.RowsByReport(ctx, previous.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous report rows: %w", err)
	}

	prices := make(map[id.ID]types.Money, len(rows))
	for _, row := range rows {
		prices[row.ProductID] = row.AveragePurchasePriceNet
	}
	return prices, nil
}
