package valuation

import (
	"context"
	"time"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
)

// ReportRepository defines persistence operations for reports, their rows and
// their lots.
type ReportRepository interface {
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, reportID id.ID) (*Report, error)

	// GetForUpdate loads the report with a row lock, serializing concurrent
	// step execution for the same report.
	GetForUpdate(ctx context.Context, reportID id.ID) (*Report, error)

	Update(ctx context.Context, report *Report) error

	// Delete removes the report together with its rows and lots.
	Delete(ctx context.Context, reportID id.ID) error

	// DeleteUnfinished removes every report that is still a preview or not
	// yet generated, except the given one. Only one report may be in flight
	// system-wide.
	DeleteUnfinished(ctx context.Context, exceptID id.ID) error

	// NewestPermanent returns the permanent report with the latest untilDate
	// for the warehouse, or nil if none exists.
	NewestPermanent(ctx context.Context, warehouseID id.ID) (*Report, error)

	// HasPermanentCovering reports whether a permanent report exists for the
	// warehouse with untilDate >= until.
	HasPermanentCovering(ctx context.Context, warehouseID id.ID, until time.Time) (bool, error)

	// NewestPermanentIDs returns the newest permanent report id per given
	// warehouse (warehouses without permanent reports are omitted).
	NewestPermanentIDs(ctx context.Context, warehouseIDs []id.ID) (map[id.ID]id.ID, error)

	// FindStalled returns an ungenerated report whose generation started but
	// has not progressed since the given instant, or nil.
	FindStalled(ctx context.Context, idleSince time.Time) (*Report, error)

	RowsByReport(ctx context.Context, reportID id.ID) ([]ReportRow, error)
	PurchasesByRow(ctx context.Context, rowID id.ID) ([]ReportPurchase, error)

	SaveRows(ctx context.Context, rows []ReportRow) error
	SavePurchases(ctx context.Context, purchases []ReportPurchase) error
}

// ScratchRepository stages per-report working state. Scratch tables are
// global, report-id-filtered, and never part of the audit trail.
type ScratchRepository interface {
	// PurgeAll unconditionally empties all scratch tables.
	PurgeAll(ctx context.Context) error

	// Purge removes scratch state of one report.
	Purge(ctx context.Context, reportID id.ID) error

	SaveStocks(ctx context.Context, stocks []TempStock) error
	ListStocks(ctx context.Context, reportID id.ID) ([]TempStock, error)

	// UpdateStocks writes back average prices and rating results.
	UpdateStocks(ctx context.Context, stocks []TempStock) error

	SavePurchases(ctx context.Context, purchases []TempPurchase) error
	ListPurchases(ctx context.Context, reportID id.ID) ([]TempPurchase, error)

	// UpdatePurchaseUsage writes back quantityUsed after rating.
	UpdatePurchaseUsage(ctx context.Context, purchases []TempPurchase) error
}

// ProductStock is a product's net movement quantity as of a cutoff instant.
type ProductStock struct {
	ProductID id.ID          `db:"product_id"`
	Quantity  types.Quantity `db:"quantity"`
}

// PurchaseLot is a completed, priced acquisition event consumed as a
// candidate valuation lot.
type PurchaseLot struct {
	ProductID     id.ID          `db:"product_id"`
	ReceiptLineID id.ID          `db:"receipt_line_id"`
	Date          time.Time      `db:"date"`
	UnitPriceNet  types.Money    `db:"unit_price_net"`
	Quantity      types.Quantity `db:"quantity"`
}

// ProductFact carries the product attributes the engine needs: tax rate,
// configured purchase price and the variant parent for fallback resolution,
// plus the display snapshot fields.
type ProductFact struct {
	ProductID      id.ID       `db:"product_id"`
	Number         string      `db:"number"`
	Name           string      `db:"name"`
	VariantOptions string      `db:"variant_options"`
	TaxRate        types.Money `db:"tax_rate"`

	PurchasePriceNet *types.Money `db:"purchase_price_net"`
	ParentID         *id.ID       `db:"parent_id"`
}

// FactSource reads the raw facts produced by external subsystems: stock
// movements, goods-receipt lines and product data.
type FactSource interface {
	// StockLevels returns the net movement quantity per stock-managed product
	// for the warehouse, counting movements dated strictly before until.
	// Products that are currently variant parents are excluded.
	StockLevels(ctx context.Context, warehouseID id.ID, until time.Time) ([]ProductStock, error)

	// PurchaseLots returns completed, priced, positive-quantity acquisition
	// lots of true purchase types for the warehouse, dated after from
	// (exclusive, nil on the first report) and up to until (inclusive).
	PurchaseLots(ctx context.Context, warehouseID id.ID, from *time.Time, until time.Time) ([]PurchaseLot, error)

	// ProductFacts returns facts for the given products.
	ProductFacts(ctx context.Context, productIDs []id.ID) (map[id.ID]ProductFact, error)
}

// WarehouseLocker serializes report creation, preparation and deletion per
// warehouse. The lock must be held until the surrounding transaction ends.
type WarehouseLocker interface {
	LockWarehouse(ctx context.Context, warehouseID id.ID) error
}

// NumberSource issues sequential report numbers.
type NumberSource interface {
	NextReportNumber(ctx context.Context, at time.Time) (string, error)
}

// AuditLog records report lifecycle actions for traceability.
type AuditLog interface {
	Record(ctx context.Context, action string, reportID id.ID, details map[string]any) error
}
