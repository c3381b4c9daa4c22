package valuation

import (
	"context"
	"fmt"
	"time"

	"stockval/internal/core/apperror"
	"stockval/internal/core/id"
	"stockval/internal/core/tx"
	"stockval/pkg/logger"
)

// Audit action names for report lifecycle records.
const (
	AuditActionCreate  = "create"
	AuditActionStep    = "step"
	AuditActionPersist = "persist"
	AuditActionDelete  = "delete"
)

// ServiceConfig wires the service dependencies.
type ServiceConfig struct {
	Reports   ReportRepository
	Scratch   ScratchRepository
	Facts     FactSource
	Locker    WarehouseLocker
	Numbers   NumberSource
	Audit     AuditLog
	TxManager tx.Manager

	// CurrencyDecimals is the monetary rounding precision (default 2).
	CurrencyDecimals int32
}

// Service is the report lifecycle guard. It enforces exactly-once, ordered
// execution of the generation steps and the cross-report chain invariants:
// reports of a warehouse form a strictly monotonic, non-overlapping chain,
// and only the newest permanent report may ever be deleted.
type Service struct {
	reports  ReportRepository
	scratch  ScratchRepository
	facts    FactSource
	locker   WarehouseLocker
	numbers  NumberSource
	audit    AuditLog
	tx       tx.Manager
	decimals int32

	now func() time.Time
}

// NewService creates a new valuation report service.
func NewService(cfg ServiceConfig) *Service {
	decimals := cfg.CurrencyDecimals
	if decimals <= 0 {
		decimals = 2
	}
	return &Service{
		reports:  cfg.Reports,
		scratch:  cfg.Scratch,
		facts:    cfg.Facts,
		locker:   cfg.Locker,
		numbers:  cfg.Numbers,
		audit:    cfg.Audit,
		tx:       cfg.TxManager,
		decimals: decimals,
		now:      time.Now,
	}
}

// CreateReport creates a preview report for the warehouse and reporting day.
// The report starts at the first generation step; nothing is computed yet.
func (s *Service) CreateReport(ctx context.Context, warehouseID id.ID, reportingDay time.Time, timeZone string, method CostingMethod) (*Report, error) {
	report := NewReport(warehouseID, reportingDay, timeZone, method)
	if err := report.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.locker.LockWarehouse(ctx, warehouseID); err != nil {
			return fmt.Errorf("lock warehouse: %w", err)
		}

		until, err := s.cutoff(report)
		if err != nil {
			return err
		}
		report.UntilDate = until

		covered, err := s.reports.HasPermanentCovering(ctx, warehouseID, until)
		if err != nil {
			return fmt.Errorf("check report chain: %w", err)
		}
		if covered {
			return apperror.NewYoungerReportExists(warehouseID, until)
		}

		number, err := s.numbers.NextReportNumber(ctx, s.now())
		if err != nil {
			return fmt.Errorf("generate report number: %w", err)
		}
		report.Number = number

		if err := s.reports.Create(ctx, report); err != nil {
			return fmt.Errorf("create report: %w", err)
		}

		return s.recordAudit(ctx, AuditActionCreate, report)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "valuation report created",
		"report_id", report.ID,
		"number", report.Number,
		"warehouse_id", warehouseID,
		"method", report.Method,
	)

	return report, nil
}

// AdvanceStep executes exactly the work of the report's current generation
// step and durably records the next step value. The whole invocation is one
// transaction; a crash between invocations resumes at the recorded step.
func (s *Service) AdvanceStep(ctx context.Context, reportID id.ID) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		// Row lock serializes concurrent step execution for this report.
		report, err := s.reports.GetForUpdate(ctx, reportID)
		if err != nil {
			return err
		}

		if report.Generated || report.GenerationStep >= StepReportSaved {
			return apperror.NewReportCannotBeRegenerated(reportID)
		}

		started := s.now()

		switch report.GenerationStep {
		case StepReportCreated:
			err = s.prepare(ctx, report)
		case StepReportPrepared:
			err = s.calculateStocks(ctx, report)
		case StepStocksCalculated:
			err = s.collectPurchases(ctx, report)
		case StepPurchasesCalculated:
			err = s.calculateAveragePrices(ctx, report)
		case StepAveragePriceCalculated:
			err = s.rateStocks(ctx, report)
		case StepStockRated:
			err = s.persist(ctx, report)
		default:
			return apperror.NewReportCannotBeRegenerated(reportID)
		}
		if err != nil {
			return err
		}

		report.GenerationStep = report.GenerationStep.Next()
		if report.GenerationStep == StepReportSaved {
			report.Generated = true
		}
		report.Touch()

		if err := s.reports.Update(ctx, report); err != nil {
			return fmt.Errorf("advance generation step: %w", err)
		}

		logger.Info(ctx, "generation step completed",
			"report_id", report.ID,
			"step", report.GenerationStep.String(),
			"took_ms", time.Since(started).Milliseconds(),
		)

		return s.recordAudit(ctx, AuditActionStep, report)
	})
}

// Generate drives AdvanceStep until the report is fully generated. Each step
// still commits on its own, so an interrupted run resumes where it stopped.
func (s *Service) Generate(ctx context.Context, reportID id.ID) error {
	for {
		report, err := s.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		if report.Generated {
			return nil
		}
		if err := s.AdvanceStep(ctx, reportID); err != nil {
			return err
		}
	}
}

// PersistReport promotes a fully generated, non-truncated preview report to a
// permanent one. Permanent reports are audit-locked and chain-significant.
func (s *Service) PersistReport(ctx context.Context, reportID id.ID) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		report, err := s.reports.GetForUpdate(ctx, reportID)
		if err != nil {
			return err
		}

		if err := s.locker.LockWarehouse(ctx, report.WarehouseID); err != nil {
			return fmt.Errorf("lock warehouse: %w", err)
		}

		if !report.Generated {
			return apperror.NewReportNotCompletelyGenerated(reportID)
		}
		if !report.Preview {
			return apperror.NewConflict("report is already permanent").
				WithDetail("report_id", reportID)
		}
		if report.TruncatedUntilDate() {
			return apperror.NewReportDoesNotFullyIncludeReportingDay(reportID, report.UntilDate)
		}

		// Re-verify the chain invariant under the warehouse lock: a permanent
		// report may have appeared since this one was prepared.
		covered, err := s.reports.HasPermanentCovering(ctx, report.WarehouseID, report.UntilDate)
		if err != nil {
			return fmt.Errorf("check report chain: %w", err)
		}
		if covered {
			return apperror.NewYoungerReportExists(report.WarehouseID, report.UntilDate)
		}

		report.Preview = false
		report.Touch()

		if err := s.reports.Update(ctx, report); err != nil {
			return fmt.Errorf("persist report: %w", err)
		}

		logger.Info(ctx, "valuation report persisted",
			"report_id", report.ID,
			"warehouse_id", report.WarehouseID,
			"until_date", report.UntilDate,
		)

		return s.recordAudit(ctx, AuditActionPersist, report)
	})
}

// DeleteReport removes a report. Preview reports are freely deletable; a
// permanent report only if it is the chronologically newest one of its
// warehouse, since older reports are carry-over roots for everything after.
func (s *Service) DeleteReport(ctx context.Context, reportID id.ID) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		report, err := s.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}

		if err := s.locker.LockWarehouse(ctx, report.WarehouseID); err != nil {
			return fmt.Errorf("lock warehouse: %w", err)
		}

		if report.IsPermanent() {
			newest, err := s.reports.NewestPermanent(ctx, report.WarehouseID)
			if err != nil {
				return fmt.Errorf("find newest report: %w", err)
			}
			if newest == nil || newest.ID != report.ID {
				return apperror.NewOlderReportCannotBeDeleted(reportID)
			}
		}

		if err := s.scratch.Purge(ctx, reportID); err != nil {
			return fmt.Errorf("purge scratch state: %w", err)
		}
		if err := s.reports.Delete(ctx, reportID); err != nil {
			return fmt.Errorf("delete report: %w", err)
		}

		logger.Info(ctx, "valuation report deleted",
			"report_id", report.ID,
			"warehouse_id", report.WarehouseID,
		)

		return s.recordAudit(ctx, AuditActionDelete, report)
	})
}

// ListDeletableReportIDs returns, per given warehouse, the id of the report
// that is currently allowed to be deleted (the newest permanent one).
func (s *Service) ListDeletableReportIDs(ctx context.Context, warehouseIDs []id.ID) ([]id.ID, error) {
	newest, err := s.reports.NewestPermanentIDs(ctx, warehouseIDs)
	if err != nil {
		return nil, fmt.Errorf("list newest reports: %w", err)
	}

	ids := make([]id.ID, 0, len(newest))
	for _, warehouseID := range warehouseIDs {
		if reportID, ok := newest[warehouseID]; ok {
			ids = append(ids, reportID)
		}
	}
	return ids, nil
}

// GetReport returns the report by id.
func (s *Service) GetReport(ctx context.Context, reportID id.ID) (*Report, error) {
	return s.reports.GetByID(ctx, reportID)
}

// GetReportRows returns the permanent rows of a generated report.
func (s *Service) GetReportRows(ctx context.Context, reportID id.ID) ([]ReportRow, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.Generated {
		return nil, apperror.NewReportNotCompletelyGenerated(reportID)
	}
	return s.reports.RowsByReport(ctx, reportID)
}

// GetRowPurchases returns the consumed lots of one report row.
func (s *Service) GetRowPurchases(ctx context.Context, rowID id.ID) ([]ReportPurchase, error) {
	return s.reports.PurchasesByRow(ctx, rowID)
}

// ResumeStalled finds one report whose generation has been idle since the
// given cutoff and drives it to completion. Used by the background worker.
func (s *Service) ResumeStalled(ctx context.Context, idleSince time.Time) (bool, error) {
	report, err := s.reports.FindStalled(ctx, idleSince)
	if err != nil {
		return false, fmt.Errorf("find stalled report: %w", err)
	}
	if report == nil {
		return false, nil
	}

	logger.Info(ctx, "resuming stalled report generation",
		"report_id", report.ID,
		"step", report.GenerationStep.String(),
	)

	return true, s.Generate(ctx, report.ID)
}

// prepare is the first generation step: it fixes the cutoff instant, clears
// all scratch state, removes any other in-flight or preview report (only one
// may exist system-wide) and verifies the chain invariant.
func (s *Service) prepare(ctx context.Context, report *Report) error {
	if err := s.locker.LockWarehouse(ctx, report.WarehouseID); err != nil {
		return fmt.Errorf("lock warehouse: %w", err)
	}

	until, err := s.cutoff(report)
	if err != nil {
		return err
	}
	report.UntilDate = until

	if err := s.scratch.PurgeAll(ctx); err != nil {
		return fmt.Errorf("purge scratch tables: %w", err)
	}
	if err := s.reports.DeleteUnfinished(ctx, report.ID); err != nil {
		return fmt.Errorf("delete unfinished reports: %w", err)
	}

	covered, err := s.reports.HasPermanentCovering(ctx, report.WarehouseID, until)
	if err != nil {
		return fmt.Errorf("check report chain: %w", err)
	}
	if covered {
		return apperror.NewYoungerReportExists(report.WarehouseID, until)
	}

	return nil
}

// cutoff computes the valuation cutoff: the end of the reporting day in the
// report's time zone, truncated to "now" if the day is not yet complete.
func (s *Service) cutoff(report *Report) (time.Time, error) {
	end, err := report.EndOfReportingDay()
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid time zone").WithCause(err)
	}
	now := s.now().UTC()
	if now.Before(end) {
		return now, nil
	}
	return end, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, report *Report) error {
	if s.audit == nil {
		return nil
	}
	details := map[string]any{
		"warehouse_id": report.WarehouseID,
		"method":       string(report.Method),
		"step":         report.GenerationStep.String(),
		"preview":      report.Preview,
		"generated":    report.Generated,
		"until_date":   report.UntilDate,
	}
	if err := s.audit.Record(ctx, action, report.ID, details); err != nil {
		// Audit failures must not abort lifecycle operations.
		logger.Warn(ctx, "audit record failed", "action", action, "report_id", report.ID, "error", err)
	}
	return nil
}
