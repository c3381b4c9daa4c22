package valuation_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockval/internal/core/id"
	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/storage/postgres"
)

const (
	tmpStocksTable    = "tmp_report_stocks"
	tmpPurchasesTable = "tmp_report_purchases"
)

var tmpStockCols = []string{
	"report_id", "product_id", "stock", "shortfall",
	"average_price_net", "valuation_net", "surplus_stock", "surplus_price_net",
}

var tmpPurchaseCols = []string{
	"id", "report_id", "product_id", "type", "date",
	"unit_price_net", "quantity", "quantity_used",
	"receipt_line_id", "carry_over_row_id",
}

// Compile-time check.
var _ valuation.ScratchRepository = (*ScratchRepo)(nil)

// ScratchRepo stages per-report working state in global scratch tables.
// Writes go through COPY, write-backs after rating through batched UPDATEs.
type ScratchRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	executor  *postgres.BatchExecutor
}

// NewScratchRepo creates a new scratch repository.
func NewScratchRepo(txManager *postgres.TxManager) *ScratchRepo {
	return &ScratchRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		executor:  postgres.NewBatchExecutor(txManager),
	}
}

// PurgeAll unconditionally empties all scratch tables.
func (r *ScratchRepo) PurgeAll(ctx context.Context) error {
	querier := r.txManager.GetQuerier(ctx)
	for _, table := range []string{tmpPurchasesTable, tmpStocksTable} {
		if _, err := querier.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}

// Purge removes scratch state of one report.
func (r *ScratchRepo) Purge(ctx context.Context, reportID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)
	for _, table := range []string{tmpPurchasesTable, tmpStocksTable} {
		if _, err := querier.Exec(ctx, "DELETE FROM "+table+" WHERE report_id = $1", reportID); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}

// SaveStocks bulk-inserts scratch stock rows via COPY.
func (r *ScratchRepo) SaveStocks(ctx context.Context, stocks []valuation.TempStock) error {
	if len(stocks) == 0 {
		return nil
	}

	values := make([][]any, 0, len(stocks))
	for _, s := range stocks {
		values = append(values, []any{
			s.ReportID, s.ProductID, s.Stock, s.Shortfall,
			s.AveragePriceNet, s.ValuationNet, s.SurplusStock, s.SurplusPriceNet,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, tmpStocksTable, tmpStockCols, values); err != nil {
		return fmt.Errorf("copy scratch stocks: %w", err)
	}
	return nil
}

// ListStocks retrieves the scratch stock rows of a report.
func (r *ScratchRepo) ListStocks(ctx context.Context, reportID id.ID) ([]valuation.TempStock, error) {
	q := builder().
		Select(tmpStockCols...).
		From(tmpStocksTable).
		Where(squirrel.Eq{"report_id": reportID}).
		OrderBy("product_id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var stocks []valuation.TempStock
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &stocks, sql, args...); err != nil {
		return nil, fmt.Errorf("list scratch stocks: %w", err)
	}
	return stocks, nil
}

// UpdateStocks writes back average prices and rating results.
func (r *ScratchRepo) UpdateStocks(ctx context.Context, stocks []valuation.TempStock) error {
	if len(stocks) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET average_price_net = $3, valuation_net = $4,
		    surplus_stock = $5, surplus_price_net = $6
		WHERE report_id = $1 AND product_id = $2
	`, tmpStocksTable)

	queries := make([]postgres.BatchQuery, 0, len(stocks))
	for _, s := range stocks {
		queries = append(queries, postgres.BatchQuery{
			SQL: sql,
			Args: []any{
				s.ReportID, s.ProductID,
				s.AveragePriceNet, s.ValuationNet, s.SurplusStock, s.SurplusPriceNet,
			},
		})
	}

	if err := r.executor.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("update scratch stocks: %w", err)
	}
	return nil
}

// SavePurchases bulk-inserts scratch purchase lots via COPY.
func (r *ScratchRepo) SavePurchases(ctx context.Context, purchases []valuation.TempPurchase) error {
	if len(purchases) == 0 {
		return nil
	}

	values := make([][]any, 0, len(purchases))
	for _, p := range purchases {
		values = append(values, []any{
			p.ID, p.ReportID, p.ProductID, p.Type, p.Date,
			p.UnitPriceNet, p.Quantity, p.QuantityUsed,
			p.ReceiptLineID, p.CarryOverRowID,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, tmpPurchasesTable, tmpPurchaseCols, values); err != nil {
		return fmt.Errorf("copy scratch purchases: %w", err)
	}
	return nil
}

// ListPurchases retrieves the scratch purchase lots of a report.
func (r *ScratchRepo) ListPurchases(ctx context.Context, reportID id.ID) ([]valuation.TempPurchase, error) {
	q := builder().
		Select(tmpPurchaseCols...).
		From(tmpPurchasesTable).
		Where(squirrel.Eq{"report_id": reportID}).
		OrderBy("product_id ASC", "date ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var purchases []valuation.TempPurchase
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &purchases, sql, args...); err != nil {
		return nil, fmt.Errorf("list scratch purchases: %w", err)
	}
	return purchases, nil
}

// UpdatePurchaseUsage writes back quantityUsed after rating.
func (r *ScratchRepo) UpdatePurchaseUsage(ctx context.Context, purchases []valuation.TempPurchase) error {
	if len(purchases) == 0 {
		return nil
	}

	sql := fmt.Sprintf("UPDATE %s SET quantity_used = $2 WHERE id = $1", tmpPurchasesTable)

	queries := make([]postgres.BatchQuery, 0, len(purchases))
	for _, p := range purchases {
		queries = append(queries, postgres.BatchQuery{
			SQL:  sql,
			Args: []any{p.ID, p.QuantityUsed},
		})
	}

	if err := r.executor.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("update scratch purchase usage: %w", err)
	}
	return nil
}
