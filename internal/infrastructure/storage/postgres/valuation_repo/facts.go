package valuation_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "reg_stock_movements"
	receiptsTable  = "doc_receipt_lines"
	productsTable  = "cat_products"
)

// Compile-time check.
var _ valuation.FactSource = (*FactRepo)(nil)

// FactRepo reads the raw facts the engine consumes: stock movements,
// goods-receipt lines and product data. All reads are as-of queries over
// tables owned by other subsystems; this repository never writes.
type FactRepo struct {
	txManager *postgres.TxManager
}

// NewFactRepo creates a new fact source.
func NewFactRepo(txManager *postgres.TxManager) *FactRepo {
	return &FactRepo{txManager: txManager}
}

// StockLevels returns the net movement quantity per stock-managed product for
// the warehouse, counting movements dated strictly before until. Products
// that currently act as variant parents are excluded; their stock lives on
// the variants.
func (r *FactRepo) StockLevels(ctx context.Context, warehouseID id.ID, until time.Time) ([]valuation.ProductStock, error) {
	sql := fmt.Sprintf(`
		SELECT m.product_id,
		       COALESCE(SUM(CASE WHEN m.record_type = 'receipt' THEN m.quantity ELSE -m.quantity END), 0) AS quantity
		FROM %s m
		JOIN %s p ON p.id = m.product_id
		WHERE m.warehouse_id = $1
		  AND m.period < $2
		  AND p.stock_managed = true
		  AND NOT EXISTS (SELECT 1 FROM %s v WHERE v.parent_id = p.id)
		GROUP BY m.product_id
		ORDER BY m.product_id
	`, movementsTable, productsTable, productsTable)

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, warehouseID, until)
	if err != nil {
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	var stocks []valuation.ProductStock
	for rows.Next() {
		var s valuation.ProductStock
		var scaled int64
		if err := rows.Scan(&s.ProductID, &scaled); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		s.Quantity = types.NewQuantityFromInt64Scaled(scaled)
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// PurchaseLots returns completed, priced, positive-quantity acquisition lots
// of true purchase types for the warehouse. The window is half-open: dated
// after from (exclusive, nil on the first report) and up to until (inclusive).
func (r *FactRepo) PurchaseLots(ctx context.Context, warehouseID id.ID, from *time.Time, until time.Time) ([]valuation.PurchaseLot, error) {
	q := builder().
		Select("product_id", "id AS receipt_line_id", "date", "unit_price_net", "quantity").
		From(receiptsTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		Where(squirrel.Eq{"completed": true}).
		Where(squirrel.Eq{"acquisition_type": []string{"supplier", "free"}}).
		Where(squirrel.NotEq{"unit_price_net": nil}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.LtOrEq{"date": until}).
		OrderBy("date ASC", "unit_price_net ASC")

	if from != nil {
		q = q.Where(squirrel.Gt{"date": *from})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []valuation.PurchaseLot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("query purchase lots: %w", err)
	}
	return lots, nil
}

// ProductFacts returns facts for the given products.
func (r *FactRepo) ProductFacts(ctx context.Context, productIDs []id.ID) (map[id.ID]valuation.ProductFact, error) {
	facts := make(map[id.ID]valuation.ProductFact, len(productIDs))
	if len(productIDs) == 0 {
		return facts, nil
	}

	q := builder().
		Select("id AS product_id", "number", "name",
			"COALESCE(variant_options, '') AS variant_options",
			"COALESCE(tax_rate, 0) AS tax_rate",
			"purchase_price_net", "parent_id").
		From(productsTable).
		Where(squirrel.Eq{"id": productIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []valuation.ProductFact
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("query product facts: %w", err)
	}

	for _, f := range items {
		facts[f.ProductID] = f
	}
	return facts, nil
}
