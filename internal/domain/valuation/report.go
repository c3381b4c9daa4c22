// Package valuation provides the inventory stock-valuation report engine.
//
// A report values all inventory held in one warehouse as of a cutoff instant
// using one of three costing methods (FIFO, LIFO, weighted average).
// Generation is a staged, resumable state machine driven by AdvanceStep; each
// step runs in its own transaction and records its completion durably.
package valuation

import (
	"context"
	"time"

	"stockval/internal/core/apperror"
	"stockval/internal/core/entity"
	"stockval/internal/core/id"
	"stockval/internal/core/types"
)

// CostingMethod selects the rule for assigning purchase prices to stock on hand.
type CostingMethod string

const (
	MethodFIFO    CostingMethod = "fifo"
	MethodLIFO    CostingMethod = "lifo"
	MethodAverage CostingMethod = "average"
)

// IsValid reports whether the method is one of the supported costing methods.
func (m CostingMethod) IsValid() bool {
	switch m {
	case MethodFIFO, MethodLIFO, MethodAverage:
		return true
	}
	return false
}

// GenerationStep is the durable resumption point of report generation.
// Steps only advance forward; each value names the state already reached.
type GenerationStep int

const (
	StepReportCreated GenerationStep = iota
	StepReportPrepared
	StepStocksCalculated
	StepPurchasesCalculated
	StepAveragePriceCalculated
	StepStockRated
	StepReportSaved
)

// Next returns the step following s. ReportSaved is terminal.
func (s GenerationStep) Next() GenerationStep {
	if s >= StepReportSaved {
		return StepReportSaved
	}
	return s + 1
}

func (s GenerationStep) String() string {
	switch s {
	case StepReportCreated:
		return "report_created"
	case StepReportPrepared:
		return "report_prepared"
	case StepStocksCalculated:
		return "stocks_calculated"
	case StepPurchasesCalculated:
		return "purchases_calculated"
	case StepAveragePriceCalculated:
		return "average_price_calculated"
	case StepStockRated:
		return "stock_rated"
	case StepReportSaved:
		return "report_saved"
	}
	return "unknown"
}

// Report is a stock-valuation report for one warehouse and one reporting day.
// Reports start as previews; a persisted (permanent) report becomes the
// carry-over root for the next report of the same warehouse.
type Report struct {
	entity.BaseEntity

	// Number is the human-readable report number (auto-generated)
	Number string `db:"number" json:"number"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// ReportingDay is the calendar day (stored as midnight UTC) the report
	// values inventory as of, interpreted in TimeZone.
	ReportingDay time.Time `db:"reporting_day" json:"reportingDay"`
	TimeZone     string    `db:"time_zone" json:"timeZone"`

	// UntilDate is the inclusive UTC end of the valuation period. It may be
	// truncated to "now" while the reporting day is still running.
	UntilDate time.Time `db:"until_date" json:"untilDate"`

	Method CostingMethod `db:"method" json:"method"`

	Preview   bool `db:"preview" json:"preview"`
	Generated bool `db:"generated" json:"generated"`

	GenerationStep GenerationStep `db:"generation_step" json:"generationStep"`
}

// NewReport creates a preview report at the initial generation step.
func NewReport(warehouseID id.ID, reportingDay time.Time, timeZone string, method CostingMethod) *Report {
	return &Report{
		BaseEntity:     entity.NewBaseEntity(),
		WarehouseID:    warehouseID,
		ReportingDay:   reportingDay.UTC().Truncate(24 * time.Hour),
		TimeZone:       timeZone,
		Method:         method,
		Preview:        true,
		Generated:      false,
		GenerationStep: StepReportCreated,
	}
}

// Validate implements entity self-validation.
func (r *Report) Validate(ctx context.Context) error {
	if id.IsNil(r.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}
	if r.ReportingDay.IsZero() {
		return apperror.NewValidation("reporting day is required").
			WithDetail("field", "reportingDay")
	}
	if !r.Method.IsValid() {
		return apperror.NewValidation("invalid costing method").
			WithDetail("field", "method").
			WithDetail("value", string(r.Method))
	}
	if _, err := time.LoadLocation(r.TimeZone); err != nil {
		return apperror.NewValidation("invalid time zone").
			WithDetail("field", "timeZone").
			WithDetail("value", r.TimeZone)
	}
	return nil
}

// EndOfReportingDay returns the exclusive end of the reporting day in the
// report's time zone, converted to UTC.
func (r *Report) EndOfReportingDay() (time.Time, error) {
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := r.ReportingDay.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC(), nil
}

// TruncatedUntilDate reports whether UntilDate was cut short because the
// reporting day had not finished when the report was prepared.
func (r *Report) TruncatedUntilDate() bool {
	end, err := r.EndOfReportingDay()
	if err != nil {
		return false
	}
	return r.UntilDate.Before(end)
}

// IsPermanent reports whether the report is finalized and chain-significant.
func (r *Report) IsPermanent() bool {
	return r.Generated && !r.Preview
}

// PurchaseType classifies a valuation lot.
type PurchaseType string

const (
	// PurchaseTypePurchase is an actual priced acquisition inside the period.
	PurchaseTypePurchase PurchaseType = "purchase"
	// PurchaseTypeCarryOver is the synthetic lot carrying the previous
	// permanent report's ending inventory into this period.
	PurchaseTypeCarryOver PurchaseType = "carry_over"
	// PurchaseTypeSurplusStock covers on-hand quantity exceeding all known
	// lots, valued via the fallback price chain.
	PurchaseTypeSurplusStock PurchaseType = "surplus_stock"
)

// ReportRow is the permanent per-product result of a report. Written once by
// the persister at the final step, immutable thereafter.
type ReportRow struct {
	ID       id.ID `db:"id" json:"id"`
	ReportID id.ID `db:"report_id" json:"reportId"`

	ProductID id.ID `db:"product_id" json:"productId"`

	// Display snapshot captured at generation time. Reflects current product
	// data, not historical (accepted limitation).
	ProductNumber  string `db:"product_number" json:"productNumber"`
	ProductName    string `db:"product_name" json:"productName"`
	VariantOptions string `db:"variant_options" json:"variantOptions,omitempty"`

	Stock types.Quantity `db:"stock" json:"stock"`

	// ValuationNet/Gross are nil for products whose valuation was left
	// undetermined (negative-stock inconsistency).
	ValuationNet   *types.Money `db:"valuation_net" json:"valuationNet,omitempty"`
	ValuationGross *types.Money `db:"valuation_gross" json:"valuationGross,omitempty"`

	TaxRate types.Money `db:"tax_rate" json:"taxRate"`

	AveragePurchasePriceNet types.Money `db:"average_purchase_price_net" json:"averagePurchasePriceNet"`

	SurplusStock            types.Quantity `db:"surplus_stock" json:"surplusStock"`
	SurplusPurchasePriceNet types.Money    `db:"surplus_purchase_price_net" json:"surplusPurchasePriceNet"`
}

// ReportPurchase is one consumed acquisition lot of a report row. The set of
// lots forms the audit trail of exactly how a valuation was derived.
type ReportPurchase struct {
	ID          id.ID `db:"id" json:"id"`
	ReportRowID id.ID `db:"report_row_id" json:"reportRowId"`

	Type PurchaseType `db:"type" json:"type"`

	Date         time.Time      `db:"date" json:"date"`
	UnitPriceNet types.Money    `db:"unit_price_net" json:"unitPriceNet"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`

	QuantityUsedForValuation types.Quantity `db:"quantity_used" json:"quantityUsedForValuation"`

	// Origin references: the acquisition line this lot came from, or the
	// previous report row it carries over.
	ReceiptLineID  *id.ID `db:"receipt_line_id" json:"receiptLineId,omitempty"`
	CarryOverRowID *id.ID `db:"carry_over_row_id" json:"carryOverRowId,omitempty"`
}

// TempStock is the per-report, per-product scratch stock row. Mutable during
// generation, purged on completion or on a new generation attempt.
type TempStock struct {
	ReportID  id.ID `db:"report_id" json:"reportId"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// Stock is the snapshot quantity, clamped to zero.
	Stock types.Quantity `db:"stock" json:"stock"`

	// Shortfall marks products whose raw snapshot was negative; their
	// valuation is deliberately left undetermined.
	Shortfall bool `db:"shortfall" json:"shortfall"`

	AveragePriceNet types.Money `db:"average_price_net" json:"averagePriceNet"`

	// Rating results
	ValuationNet    *types.Money   `db:"valuation_net" json:"valuationNet,omitempty"`
	SurplusStock    types.Quantity `db:"surplus_stock" json:"surplusStock"`
	SurplusPriceNet types.Money    `db:"surplus_price_net" json:"surplusPriceNet"`
}

// TempPurchase is a candidate valuation lot in scratch state.
type TempPurchase struct {
	ID        id.ID `db:"id" json:"id"`
	ReportID  id.ID `db:"report_id" json:"reportId"`
	ProductID id.ID `db:"product_id" json:"productId"`

	Type PurchaseType `db:"type" json:"type"`

	Date         time.Time      `db:"date" json:"date"`
	UnitPriceNet types.Money    `db:"unit_price_net" json:"unitPriceNet"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`

	QuantityUsed types.Quantity `db:"quantity_used" json:"quantityUsed"`

	ReceiptLineID  *id.ID `db:"receipt_line_id" json:"receiptLineId,omitempty"`
	CarryOverRowID *id.ID `db:"carry_over_row_id" json:"carryOverRowId,omitempty"`
}
