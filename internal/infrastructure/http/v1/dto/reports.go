package dto

import (
	"encoding/json"
	"time"

	"stockval/internal/core/types"
	"stockval/internal/domain/valuation"
)

// CreateReportRequest creates a new valuation report.
type CreateReportRequest struct {
	WarehouseID  string `json:"warehouseId" binding:"required,uuid"`
	ReportingDay string `json:"reportingDay" binding:"required"` // YYYY-MM-DD
	TimeZone     string `json:"timeZone" binding:"required"`
	Method       string `json:"method" binding:"required,oneof=fifo lifo average"`
}

// ReportResponse is the API view of a report.
type ReportResponse struct {
	ID             string    `json:"id"`
	Number         string    `json:"number"`
	WarehouseID    string    `json:"warehouseId"`
	ReportingDay   string    `json:"reportingDay"`
	TimeZone       string    `json:"timeZone"`
	UntilDate      time.Time `json:"untilDate"`
	Method         string    `json:"method"`
	Preview        bool      `json:"preview"`
	Generated      bool      `json:"generated"`
	GenerationStep string    `json:"generationStep"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FromReport converts a domain report.
func FromReport(r *valuation.Report) ReportResponse {
	return ReportResponse{
		ID:             r.ID.String(),
		Number:         r.Number,
		WarehouseID:    r.WarehouseID.String(),
		ReportingDay:   r.ReportingDay.Format("2006-01-02"),
		TimeZone:       r.TimeZone,
		UntilDate:      r.UntilDate,
		Method:         string(r.Method),
		Preview:        r.Preview,
		Generated:      r.Generated,
		GenerationStep: r.GenerationStep.String(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ReportRowResponse is the API view of a report row.
type ReportRowResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ProductNumber  string `json:"productNumber"`
	ProductName    string `json:"productName"`
	VariantOptions string `json:"variantOptions,omitempty"`

	Stock types.Quantity `json:"stock"`

	ValuationNet   *types.Money `json:"valuationNet,omitempty"`
	ValuationGross *types.Money `json:"valuationGross,omitempty"`
	TaxRate        types.Money  `json:"taxRate"`

	AveragePurchasePriceNet types.Money `json:"averagePurchasePriceNet"`

	SurplusStock            types.Quantity `json:"surplusStock"`
	SurplusPurchasePriceNet types.Money    `json:"surplusPurchasePriceNet"`
}

// FromReportRow converts a domain row.
func FromReportRow(r valuation.ReportRow) ReportRowResponse {
	return ReportRowResponse{
		ID:                      r.ID.String(),
		ProductID:               r.ProductID.String(),
		ProductNumber:           r.ProductNumber,
		ProductName:             r.ProductName,
		VariantOptions:          r.VariantOptions,
		Stock:                   r.Stock,
		ValuationNet:            r.ValuationNet,
		ValuationGross:          r.ValuationGross,
		TaxRate:                 r.TaxRate,
		AveragePurchasePriceNet: r.AveragePurchasePriceNet,
		SurplusStock:            r.SurplusStock,
		SurplusPurchasePriceNet: r.SurplusPurchasePriceNet,
	}
}

// ReportPurchaseResponse is the API view of a consumed lot.
type ReportPurchaseResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Date         time.Time      `json:"date"`
	UnitPriceNet types.Money    `json:"unitPriceNet"`
	Quantity     types.Quantity `json:"quantity"`

	QuantityUsedForValuation types.Quantity `json:"quantityUsedForValuation"`

	ReceiptLineID  *string `json:"receiptLineId,omitempty"`
	CarryOverRowID *string `json:"carryOverRowId,omitempty"`
}

// FromReportPurchase converts a domain lot.
func FromReportPurchase(p valuation.ReportPurchase) ReportPurchaseResponse {
	resp := ReportPurchaseResponse{
		ID:                       p.ID.String(),
		Type:                     string(p.Type),
		Date:                     p.Date,
		UnitPriceNet:             p.UnitPriceNet,
		Quantity:                 p.Quantity,
		QuantityUsedForValuation: p.QuantityUsedForValuation,
	}
	if p.ReceiptLineID != nil {
		s := p.ReceiptLineID.String()
		resp.ReceiptLineID = &s
	}
	if p.CarryOverRowID != nil {
		s := p.CarryOverRowID.String()
		resp.CarryOverRowID = &s
	}
	return resp
}

// AuditEntryResponse is one report lifecycle audit record.
type AuditEntryResponse struct {
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DeletableReportsRequest asks which reports may be deleted.
type DeletableReportsRequest struct {
	WarehouseIDs []string `form:"warehouseIds" binding:"required"`
}

// DeletableReportsResponse lists deletable report ids.
type DeletableReportsResponse struct {
	ReportIDs []string `json:"reportIds"`
}
