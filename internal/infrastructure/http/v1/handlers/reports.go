package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockval/internal/core/apperror"
	"stockval/internal/core/id"
	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/http/v1/dto"
	"stockval/internal/infrastructure/storage/postgres"
)

// ReportsHandler serves valuation report endpoints.
type ReportsHandler struct {
	*BaseHandler
	service *valuation.Service
	audit   *postgres.AuditService
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *valuation.Service, audit *postgres.AuditService) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles report creation.
// POST /api/v1/valuation-reports
func (h *ReportsHandler) Create(c *gin.Context) {
	var req dto.CreateReportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouseID, err := id.Parse(req.WarehouseID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouse id").WithDetail("field", "warehouseId"))
		return
	}

	reportingDay, err := time.Parse("2006-01-02", req.ReportingDay)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid reporting day, expected YYYY-MM-DD").
			WithDetail("field", "reportingDay"))
		return
	}

	report, err := h.service.CreateReport(c.Request.Context(), warehouseID, reportingDay,
		req.TimeZone, valuation.CostingMethod(req.Method))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, report.ID.String())
}

// Advance runs the next generation step.
// POST /api/v1/valuation-reports/:id/advance
func (h *ReportsHandler) Advance(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.AdvanceStep(c.Request.Context(), reportID); err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), reportID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// Generate runs all remaining generation steps.
// POST /api/v1/valuation-reports/:id/generate
func (h *ReportsHandler) Generate(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Generate(c.Request.Context(), reportID); err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), reportID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// Persist finalizes a generated preview report.
// POST /api/v1/valuation-reports/:id/persist
func (h *ReportsHandler) Persist(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.PersistReport(c.Request.Context(), reportID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "report persisted")
}

// Delete removes a report.
// DELETE /api/v1/valuation-reports/:id
func (h *ReportsHandler) Delete(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteReport(c.Request.Context(), reportID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Deletable lists reports that may currently be deleted.
// GET /api/v1/valuation-reports/deletable?warehouseIds=...
func (h *ReportsHandler) Deletable(c *gin.Context) {
	var req dto.DeletableReportsRequest
	if !h.BindQuery(c, &req) {
		return
	}

	warehouseIDs := make([]id.ID, 0, len(req.WarehouseIDs))
	for _, raw := range req.WarehouseIDs {
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouse id").WithDetail("value", raw))
			return
		}
		warehouseIDs = append(warehouseIDs, parsed)
	}

	reportIDs, err := h.service.ListDeletableReportIDs(c.Request.Context(), warehouseIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.DeletableReportsResponse{ReportIDs: make([]string, 0, len(reportIDs))}
	for _, rid := range reportIDs {
		resp.ReportIDs = append(resp.ReportIDs, rid.String())
	}
	h.OK(c, resp)
}

// Get returns one report.
// GET /api/v1/valuation-reports/:id
func (h *ReportsHandler) Get(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), reportID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// Rows returns the result rows of a generated report.
// GET /api/v1/valuation-reports/:id/rows
func (h *ReportsHandler) Rows(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rows, err := h.service.GetReportRows(c.Request.Context(), reportID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.ReportRowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, dto.FromReportRow(row))
	}
	h.OK(c, resp)
}

// Audit returns the lifecycle audit trail of a report, newest first.
// GET /api/v1/valuation-reports/:id/audit?limit=...
func (h *ReportsHandler) Audit(c *gin.Context) {
	reportID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.Error(c, apperror.NewValidation("limit must be between 1 and 500").
				WithDetail("field", "limit"))
			return
		}
		limit = parsed
	}

	// Surface NotFound for unknown reports instead of an empty trail.
	if _, err := h.service.GetReport(c.Request.Context(), reportID); err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.audit.History(c.Request.Context(), reportID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.AuditEntryResponse{
			Action:    e.Action,
			UserID:    e.UserID,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		})
	}
	h.OK(c, resp)
}

// RowPurchases returns the consumed lots of one row.
// GET /api/v1/valuation-reports/rows/:rowId/purchases
func (h *ReportsHandler) RowPurchases(c *gin.Context) {
	rowID, ok := h.ParseIDParam(c, "rowId")
	if !ok {
		return
	}

	purchases, err := h.service.GetRowPurchases(c.Request.Context(), rowID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.ReportPurchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		resp = append(resp, dto.FromReportPurchase(p))
	}
	h.OK(c, resp)
}
