// Package valuation_repo provides PostgreSQL implementations for the
// valuation report repositories.
package valuation_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockval/internal/core/apperror"
	"stockval/internal/core/id"
	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/storage/postgres"
)

const (
	reportsTable   = "val_reports"
	rowsTable      = "val_report_rows"
	purchasesTable = "val_report_purchases"
)

var reportCols = []string{
	"id", "version", "created_at", "updated_at",
	"number", "warehouse_id", "reporting_day", "time_zone", "until_date",
	"method", "preview", "generated", "generation_step",
}

var rowCols = []string{
	"id", "report_id", "product_id",
	"product_number", "product_name", "variant_options",
	"stock", "valuation_net", "valuation_gross", "tax_rate",
	"average_purchase_price_net", "surplus_stock", "surplus_purchase_price_net",
}

var purchaseCols = []string{
	"id", "report_row_id", "type", "date", "unit_price_net",
	"quantity", "quantity_used", "receipt_line_id", "carry_over_row_id",
}

// Compile-time check.
var _ valuation.ReportRepository = (*ReportRepo)(nil)

// ReportRepo persists reports, rows and consumed lots.
type ReportRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
	}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ReportRepo) baseSelect() squirrel.SelectBuilder {
	return builder().Select(reportCols...).From(reportsTable)
}

// Create inserts a new report.
func (r *ReportRepo) Create(ctx context.Context, report *valuation.Report) error {
	q := builder().
		Insert(reportsTable).
		Columns(reportCols...).
		Values(
			report.ID, report.Version, report.CreatedAt, report.UpdatedAt,
			report.Number, report.WarehouseID, report.ReportingDay, report.TimeZone, report.UntilDate,
			report.Method, report.Preview, report.Generated, report.GenerationStep,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", reportsTable, err)
	}
	return nil
}

// GetByID retrieves a report by ID.
func (r *ReportRepo) GetByID(ctx context.Context, reportID id.ID) (*valuation.Report, error) {
	return r.getOne(ctx, r.baseSelect().Where(squirrel.Eq{"id": reportID}).Limit(1), reportID.String())
}

// GetForUpdate retrieves a report by ID with a row lock, serializing
// concurrent step execution for the same report.
func (r *ReportRepo) GetForUpdate(ctx context.Context, reportID id.ID) (*valuation.Report, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": reportID}).
		Suffix("FOR UPDATE")
	return r.getOne(ctx, q, reportID.String())
}

func (r *ReportRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*valuation.Report, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var report valuation.Report
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &report, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(reportsTable, key)
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// Update modifies an existing report with optimistic locking. Callers bump
// the entity version via Touch before updating; the previous version is
// expected in place.
func (r *ReportRepo) Update(ctx context.Context, report *valuation.Report) error {
	q := builder().
		Update(reportsTable).
		Set("version", report.Version).
		Set("updated_at", report.UpdatedAt).
		Set("number", report.Number).
		Set("until_date", report.UntilDate).
		Set("method", report.Method).
		Set("preview", report.Preview).
		Set("generated", report.Generated).
		Set("generation_step", report.GenerationStep).
		Where(squirrel.Eq{"id": report.ID}).
		Where(squirrel.Eq{"version": report.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", reportsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConflict("report was modified concurrently").
			WithDetail("id", report.ID.String())
	}
	return nil
}

// Delete removes the report together with its rows and lots.
func (r *ReportRepo) Delete(ctx context.Context, reportID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)

	// Lots reference rows, rows reference the report.
	delPurchases := fmt.Sprintf(`
		DELETE FROM %s
		WHERE report_row_id IN (SELECT id FROM %s WHERE report_id = $1)
	`, purchasesTable, rowsTable)
	if _, err := querier.Exec(ctx, delPurchases, reportID); err != nil {
		return fmt.Errorf("delete report lots: %w", err)
	}
	if _, err := querier.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE report_id = $1", rowsTable), reportID); err != nil {
		return fmt.Errorf("delete report rows: %w", err)
	}

	result, err := querier.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", reportsTable), reportID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(reportsTable, reportID.String())
	}
	return nil
}

// DeleteUnfinished removes every report that is still a preview or not yet
// generated, except the given one. Only one report may be in flight
// system-wide.
func (r *ReportRepo) DeleteUnfinished(ctx context.Context, exceptID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)

	const cond = "(rp.preview = true OR rp.generated = false) AND rp.id <> $1"

	delPurchases := fmt.Sprintf(`
		DELETE FROM %s
		WHERE report_row_id IN (
			SELECT rw.id FROM %s rw
			JOIN %s rp ON rp.id = rw.report_id
			WHERE %s
		)
	`, purchasesTable, rowsTable, reportsTable, cond)
	if _, err := querier.Exec(ctx, delPurchases, exceptID); err != nil {
		return fmt.Errorf("delete unfinished lots: %w", err)
	}

	delRows := fmt.Sprintf(`
		DELETE FROM %s
		WHERE report_id IN (SELECT rp.id FROM %s rp WHERE %s)
	`, rowsTable, reportsTable, cond)
	if _, err := querier.Exec(ctx, delRows, exceptID); err != nil {
		return fmt.Errorf("delete unfinished rows: %w", err)
	}

	delReports := fmt.Sprintf(`
		DELETE FROM %s rp WHERE %s
	`, reportsTable, cond)
	if _, err := querier.Exec(ctx, delReports, exceptID); err != nil {
		return fmt.Errorf("delete unfinished reports: %w", err)
	}
	return nil
}

// NewestPermanent returns the permanent report with the latest untilDate for
// the warehouse, or nil if none exists.
func (r *ReportRepo) NewestPermanent(ctx context.Context, warehouseID id.ID) (*valuation.Report, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		Where(squirrel.Eq{"preview": false}).
		Where(squirrel.Eq{"generated": true}).
		OrderBy("until_date DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var report valuation.Report
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &report, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("newest permanent: %w", err)
	}
	return &report, nil
}

// HasPermanentCovering reports whether a permanent report exists for the
// warehouse with untilDate >= until.
func (r *ReportRepo) HasPermanentCovering(ctx context.Context, warehouseID id.ID, until time.Time) (bool, error) {
	q := builder().
		Select("1").
		From(reportsTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		Where(squirrel.Eq{"preview": false}).
		Where(squirrel.Eq{"generated": true}).
		Where(squirrel.GtOrEq{"until_date": until}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has permanent covering: %w", err)
	}
	return true, nil
}

// NewestPermanentIDs returns the newest permanent report id per given
// warehouse. Warehouses without permanent reports are omitted.
func (r *ReportRepo) NewestPermanentIDs(ctx context.Context, warehouseIDs []id.ID) (map[id.ID]id.ID, error) {
	result := make(map[id.ID]id.ID, len(warehouseIDs))
	if len(warehouseIDs) == 0 {
		return result, nil
	}

	q := builder().
		Select("DISTINCT ON (warehouse_id) warehouse_id", "id").
		From(reportsTable).
		Where(squirrel.Eq{"warehouse_id": warehouseIDs}).
		Where(squirrel.Eq{"preview": false}).
		Where(squirrel.Eq{"generated": true}).
		OrderBy("warehouse_id", "until_date DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("newest permanent ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var warehouseID, reportID id.ID
		if err := rows.Scan(&warehouseID, &reportID); err != nil {
			return nil, fmt.Errorf("scan newest permanent id: %w", err)
		}
		result[warehouseID] = reportID
	}
	return result, rows.Err()
}

// FindStalled returns an ungenerated report whose generation started but has
// not progressed since idleSince, or nil.
func (r *ReportRepo) FindStalled(ctx context.Context, idleSince time.Time) (*valuation.Report, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"generated": false}).
		Where(squirrel.Gt{"generation_step": valuation.StepReportCreated}).
		Where(squirrel.Lt{"updated_at": idleSince}).
		OrderBy("updated_at ASC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var report valuation.Report
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &report, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find stalled: %w", err)
	}
	return &report, nil
}

// RowsByReport retrieves all result rows of a report ordered by product number.
func (r *ReportRepo) RowsByReport(ctx context.Context, reportID id.ID) ([]valuation.ReportRow, error) {
	q := builder().
		Select(rowCols...).
		From(rowsTable).
		Where(squirrel.Eq{"report_id": reportID}).
		OrderBy("product_number ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []valuation.ReportRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("rows by report: %w", err)
	}
	return rows, nil
}

// PurchasesByRow retrieves the consumed lots of one row in date order.
func (r *ReportRepo) PurchasesByRow(ctx context.Context, rowID id.ID) ([]valuation.ReportPurchase, error) {
	q := builder().
		Select(purchaseCols...).
		From(purchasesTable).
		Where(squirrel.Eq{"report_row_id": rowID}).
		OrderBy("date ASC", "unit_price_net ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var purchases []valuation.ReportPurchase
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &purchases, sql, args...); err != nil {
		return nil, fmt.Errorf("purchases by row: %w", err)
	}
	return purchases, nil
}

// SaveRows bulk-inserts report rows via COPY.
func (r *ReportRepo) SaveRows(ctx context.Context, rows []valuation.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, []any{
			row.ID, row.ReportID, row.ProductID,
			row.ProductNumber, row.ProductName, row.VariantOptions,
			row.Stock, row.ValuationNet, row.ValuationGross, row.TaxRate,
			row.AveragePurchasePriceNet, row.SurplusStock, row.SurplusPurchasePriceNet,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, rowsTable, rowCols, values); err != nil {
		return fmt.Errorf("copy report rows: %w", err)
	}
	return nil
}

// SavePurchases bulk-inserts consumed lots via COPY.
func (r *ReportRepo) SavePurchases(ctx context.Context, purchases []valuation.ReportPurchase) error {
	if len(purchases) == 0 {
		return nil
	}

	values := make([][]any, 0, len(purchases))
	for _, p := range purchases {
		values = append(values, []any{
			p.ID, p.ReportRowID, p.Type, p.Date, p.UnitPriceNet,
			p.Quantity, p.QuantityUsedForValuation, p.ReceiptLineID, p.CarryOverRowID,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, purchasesTable, purchaseCols, values); err != nil {
		return fmt.Errorf("copy report purchases: %w", err)
	}
	return nil
}
