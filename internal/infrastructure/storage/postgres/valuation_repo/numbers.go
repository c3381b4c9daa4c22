package valuation_repo

import (
	"context"
	"time"

	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/storage/postgres"
	"stockval/pkg/numerator"
)

// reportNumberPrefix prefixes all valuation report numbers.
const reportNumberPrefix = "VAL"

// Compile-time check.
var _ valuation.NumberSource = (*ReportNumberSource)(nil)

// ReportNumberSource issues sequential report numbers (VAL-2026-00001)
// through the shared numerator, scoped to the active transaction so an
// aborted creation does not burn a number.
type ReportNumberSource struct {
	txManager *postgres.TxManager
	config    numerator.Config
}

// NewReportNumberSource creates a number source for reports.
func NewReportNumberSource(txManager *postgres.TxManager) *ReportNumberSource {
	return &ReportNumberSource{
		txManager: txManager,
		config:    numerator.DefaultConfig(reportNumberPrefix),
	}
}

// NextReportNumber implements valuation.NumberSource.
func (s *ReportNumberSource) NextReportNumber(ctx context.Context, at time.Time) (string, error) {
	svc := numerator.New(s.txManager.GetQuerier(ctx))
	return svc.GetNextNumber(ctx, s.config, at)
}
