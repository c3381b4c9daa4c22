package valuation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockval/internal/core/apperror"
	"stockval/internal/core/id"
	"stockval/internal/core/types"
)

// --- in-memory fakes ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeLocker struct {
	locked []id.ID
}

func (l *fakeLocker) LockWarehouse(_ context.Context, warehouseID id.ID) error {
	l.locked = append(l.locked, warehouseID)
	return nil
}

type fakeNumbers struct {
	next int
}

func (n *fakeNumbers) NextReportNumber(_ context.Context, at time.Time) (string, error) {
	n.next++
	return fmt.Sprintf("VAL-%d-%05d", at.Year(), n.next), nil
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, action string, _ id.ID, _ map[string]any) error {
	a.actions = append(a.actions, action)
	return nil
}

type fakeReports struct {
	reports   map[id.ID]*Report
	rows      map[id.ID][]ReportRow      // by report id
	lotsByRow map[id.ID][]ReportPurchase // by row id
}

func newFakeReports() *fakeReports {
	return &fakeReports{
		reports:   make(map[id.ID]*Report),
		rows:      make(map[id.ID][]ReportRow),
		lotsByRow: make(map[id.ID][]ReportPurchase),
	}
}

func (r *fakeReports) Create(_ context.Context, report *Report) error {
	cp := *report
	r.reports[report.ID] = &cp
	return nil
}

func (r *fakeReports) GetByID(_ context.Context, reportID id.ID) (*Report, error) {
	report, ok := r.reports[reportID]
	if !ok {
		return nil, apperror.NewNotFound("valuation report", reportID)
	}
	cp := *report
	return &cp, nil
}

func (r *fakeReports) GetForUpdate(ctx context.Context, reportID id.ID) (*Report, error) {
	return r.GetByID(ctx, reportID)
}

func (r *fakeReports) Update(_ context.Context, report *Report) error {
	if _, ok := r.reports[report.ID]; !ok {
		return apperror.NewNotFound("valuation report", report.ID)
	}
	cp := *report
	r.reports[report.ID] = &cp
	return nil
}

func (r *fakeReports) Delete(_ context.Context, reportID id.ID) error {
	if _, ok := r.reports[reportID]; !ok {
		return apperror.NewNotFound("valuation report", reportID)
	}
	for _, row := range r.rows[reportID] {
		delete(r.lotsByRow, row.ID)
	}
	delete(r.rows, reportID)
	delete(r.reports, reportID)
	return nil
}

func (r *fakeReports) DeleteUnfinished(ctx context.Context, exceptID id.ID) error {
	for rid, report := range r.reports {
		if rid == exceptID {
			continue
		}
		if report.Preview || !report.Generated {
			if err := r.Delete(ctx, rid); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *fakeReports) NewestPermanent(_ context.Context, warehouseID id.ID) (*Report, error) {
	var newest *Report
	for _, report := range r.reports {
		if report.WarehouseID != warehouseID || !report.IsPermanent() {
			continue
		}
		if newest == nil || report.UntilDate.After(newest.UntilDate) {
			newest = report
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *fakeReports) HasPermanentCovering(_ context.Context, warehouseID id.ID, until time.Time) (bool, error) {
	for _, report := range r.reports {
		if report.WarehouseID == warehouseID && report.IsPermanent() && !report.UntilDate.Before(until) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReports) NewestPermanentIDs(ctx context.Context, warehouseIDs []id.ID) (map[id.ID]id.ID, error) {
	newest := make(map[id.ID]id.ID)
	for _, warehouseID := range warehouseIDs {
		report, err := r.NewestPermanent(ctx, warehouseID)
		if err != nil {
			return nil, err
		}
		if report != nil {
			newest[warehouseID] = report.ID
		}
	}
	return newest, nil
}

func (r *fakeReports) FindStalled(_ context.Context, idleSince time.Time) (*Report, error) {
	for _, report := range r.reports {
		if !report.Generated && report.GenerationStep > StepReportCreated && report.UpdatedAt.Before(idleSince) {
			cp := *report
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeReports) RowsByReport(_ context.Context, reportID id.ID) ([]ReportRow, error) {
	return append([]ReportRow(nil), r.rows[reportID]...), nil
}

func (r *fakeReports) PurchasesByRow(_ context.Context, rowID id.ID) ([]ReportPurchase, error) {
	return append([]ReportPurchase(nil), r.lotsByRow[rowID]...), nil
}

func (r *fakeReports) SaveRows(_ context.Context, rows []ReportRow) error {
	for _, row := range rows {
		r.rows[row.ReportID] = append(r.rows[row.ReportID], row)
	}
	return nil
}

func (r *fakeReports) SavePurchases(_ context.Context, purchases []ReportPurchase) error {
	for _, p := range purchases {
		r.lotsByRow[p.ReportRowID] = append(r.lotsByRow[p.ReportRowID], p)
	}
	return nil
}

type fakeScratch struct {
	stocks    map[id.ID][]TempStock
	purchases map[id.ID][]TempPurchase
}

func newFakeScratch() *fakeScratch {
	return &fakeScratch{
		stocks:    make(map[id.ID][]TempStock),
		purchases: make(map[id.ID][]TempPurchase),
	}
}

func (s *fakeScratch) PurgeAll(_ context.Context) error {
	s.stocks = make(map[id.ID][]TempStock)
	s.purchases = make(map[id.ID][]TempPurchase)
	return nil
}

func (s *fakeScratch) Purge(_ context.Context, reportID id.ID) error {
	delete(s.stocks, reportID)
	delete(s.purchases, reportID)
	return nil
}

func (s *fakeScratch) SaveStocks(_ context.Context, stocks []TempStock) error {
	for _, ts := range stocks {
		s.stocks[ts.ReportID] = append(s.stocks[ts.ReportID], ts)
	}
	return nil
}

func (s *fakeScratch) ListStocks(_ context.Context, reportID id.ID) ([]TempStock, error) {
	return append([]TempStock(nil), s.stocks[reportID]...), nil
}

func (s *fakeScratch) UpdateStocks(_ context.Context, stocks []TempStock) error {
	for _, updated := range stocks {
		existing := s.stocks[updated.ReportID]
		for i := range existing {
			if existing[i].ProductID == updated.ProductID {
				existing[i] = updated
			}
		}
	}
	return nil
}

func (s *fakeScratch) SavePurchases(_ context.Context, purchases []TempPurchase) error {
	for _, p := range purchases {
		s.purchases[p.ReportID] = append(s.purchases[p.ReportID], p)
	}
	return nil
}

func (s *fakeScratch) ListPurchases(_ context.Context, reportID id.ID) ([]TempPurchase, error) {
	return append([]TempPurchase(nil), s.purchases[reportID]...), nil
}

func (s *fakeScratch) UpdatePurchaseUsage(_ context.Context, purchases []TempPurchase) error {
	for _, updated := range purchases {
		existing := s.purchases[updated.ReportID]
		for i := range existing {
			if existing[i].ID == updated.ID {
				existing[i].QuantityUsed = updated.QuantityUsed
			}
		}
	}
	return nil
}

type fakeFacts struct {
	levels []ProductStock
	lots   []PurchaseLot
	facts  map[id.ID]ProductFact
}

func newFakeFacts() *fakeFacts {
	return &fakeFacts{facts: make(map[id.ID]ProductFact)}
}

func (f *fakeFacts) StockLevels(_ context.Context, _ id.ID, _ time.Time) ([]ProductStock, error) {
	return append([]ProductStock(nil), f.levels...), nil
}

func (f *fakeFacts) PurchaseLots(_ context.Context, _ id.ID, from *time.Time, until time.Time) ([]PurchaseLot, error) {
	var lots []PurchaseLot
	for _, lot := range f.lots {
		if lot.Date.After(until) {
			continue
		}
		if from != nil && !lot.Date.After(*from) {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (f *fakeFacts) ProductFacts(_ context.Context, productIDs []id.ID) (map[id.ID]ProductFact, error) {
	facts := make(map[id.ID]ProductFact)
	for _, pid := range productIDs {
		if fact, ok := f.facts[pid]; ok {
			facts[pid] = fact
		}
	}
	return facts, nil
}

// --- test environment ---

type testEnv struct {
	svc     *Service
	reports *fakeReports
	scratch *fakeScratch
	facts   *fakeFacts
	locker  *fakeLocker
	audit   *fakeAudit
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		reports: newFakeReports(),
		scratch: newFakeScratch(),
		facts:   newFakeFacts(),
		locker:  &fakeLocker{},
		audit:   &fakeAudit{},
	}
	env.svc = NewService(ServiceConfig{
		Reports:          env.reports,
		Scratch:          env.scratch,
		Facts:            env.facts,
		Locker:           env.locker,
		Numbers:          &fakeNumbers{},
		Audit:            env.audit,
		TxManager:        fakeTxManager{},
		CurrencyDecimals: 2,
	})
	env.svc.now = func() time.Time { return now }
	return env
}

func (e *testEnv) addProduct(fact ProductFact) {
	e.facts.facts[fact.ProductID] = fact
}

// seedPermanent inserts a finished permanent report with the given rows.
func (e *testEnv) seedPermanent(warehouseID id.ID, untilDate time.Time, rows ...ReportRow) *Report {
	report := NewReport(warehouseID, untilDate.Add(-24*time.Hour), "UTC", MethodFIFO)
	report.UntilDate = untilDate
	report.Preview = false
	report.Generated = true
	report.GenerationStep = StepReportSaved
	e.reports.reports[report.ID] = report
	for i := range rows {
		rows[i].ReportID = report.ID
	}
	e.reports.rows[report.ID] = rows
	return report
}

var (
	reportingDay = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	dayEnd       = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	afterDayEnd  = time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)
)

func mustCreate(t *testing.T, env *testEnv, warehouseID id.ID, method CostingMethod) *Report {
	t.Helper()
	report, err := env.svc.CreateReport(context.Background(), warehouseID, reportingDay, "UTC", method)
	require.NoError(t, err)
	return report
}

// --- tests ---

func TestCreateReport(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	warehouseID := id.New()

	report := mustCreate(t, env, warehouseID, MethodFIFO)

	assert.NotEmpty(t, report.Number)
	assert.True(t, report.Preview)
	assert.Equal(t, StepReportCreated, report.GenerationStep)
	assert.True(t, report.UntilDate.Equal(dayEnd), "cutoff should be the day end, got %s", report.UntilDate)
	assert.Contains(t, env.locker.locked, warehouseID)
	assert.Equal(t, []string{AuditActionCreate}, env.audit.actions)

	stored, err := env.reports.GetByID(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Number, stored.Number)
}

func TestCreateReportTruncatesCutoffToNow(t *testing.T) {
	midDay := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	env := newTestEnv(midDay)

	report := mustCreate(t, env, id.New(), MethodAverage)

	assert.True(t, report.UntilDate.Equal(midDay))
	assert.True(t, report.TruncatedUntilDate())
}

func TestCreateReportRejectsCoveredPeriod(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	warehouseID := id.New()
	env.seedPermanent(warehouseID, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	_, err := env.svc.CreateReport(context.Background(), warehouseID, reportingDay, "UTC", MethodFIFO)

	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeYoungerReportExists))
}

func TestCreateReportRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(afterDayEnd)

	_, err := env.svc.CreateReport(context.Background(), id.Nil(), reportingDay, "UTC", MethodFIFO)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = env.svc.CreateReport(context.Background(), id.New(), reportingDay, "UTC", "nope")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestGenerateFullPipeline(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	warehouseID := id.New()
	ctx := context.Background()

	matched := id.New()  // fully lot-covered product, spec-style FIFO case
	oversold := id.New() // negative snapshot, left unvalued
	surplus := id.New()  // stock exceeding known lots

	env.addProduct(ProductFact{ProductID: matched, Number: "P-100", Name: "Widget", TaxRate: types.MustMoney("0.19")})
	env.addProduct(ProductFact{ProductID: oversold, Number: "P-200", Name: "Gadget"})
	env.addProduct(ProductFact{ProductID: surplus, Number: "P-300", Name: "Gizmo"})

	env.facts.levels = []ProductStock{
		{ProductID: matched, Quantity: qty(7)},
		{ProductID: oversold, Quantity: qty(-3)},
		{ProductID: surplus, Quantity: qty(5)},
	}
	env.facts.lots = []PurchaseLot{
		{ProductID: matched, ReceiptLineID: id.New(), Date: day1, UnitPriceNet: types.MustMoney("10"), Quantity: qty(5)},
		{ProductID: matched, ReceiptLineID: id.New(), Date: day2, UnitPriceNet: types.MustMoney("12"), Quantity: qty(5)},
		{ProductID: surplus, ReceiptLineID: id.New(), Date: day1, UnitPriceNet: types.MustMoney("10"), Quantity: qty(3)},
	}

	report := mustCreate(t, env, warehouseID, MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))

	final, err := env.reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.True(t, final.Generated)
	assert.Equal(t, StepReportSaved, final.GenerationStep)
	assert.True(t, final.Preview, "generation does not persist the report")

	rows, err := env.svc.GetReportRows(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byProduct := make(map[id.ID]ReportRow)
	for _, row := range rows {
		byProduct[row.ProductID] = row
	}

	matchedRow := byProduct[matched]
	require.NotNil(t, matchedRow.ValuationNet)
	assert.True(t, matchedRow.ValuationNet.Equal(types.MustMoney("74")),
		"FIFO 5x10 + 2x12, got %s", matchedRow.ValuationNet)
	require.NotNil(t, matchedRow.ValuationGross)
	assert.True(t, matchedRow.ValuationGross.Equal(types.MustMoney("88.06")),
		"74 x 1.19 rounded, got %s", matchedRow.ValuationGross)
	assert.True(t, matchedRow.AveragePurchasePriceNet.Equal(types.MustMoney("11")))
	assert.Equal(t, "P-100", matchedRow.ProductNumber)

	oversoldRow := byProduct[oversold]
	assert.True(t, oversoldRow.Stock.IsZero())
	assert.Nil(t, oversoldRow.ValuationNet)
	assert.Nil(t, oversoldRow.ValuationGross)

	surplusRow := byProduct[surplus]
	require.NotNil(t, surplusRow.ValuationNet)
	// 3x10 matched + 2x10 surplus at the weighted average fallback
	assert.True(t, surplusRow.ValuationNet.Equal(types.MustMoney("50")))
	assert.Equal(t, qty(2), surplusRow.SurplusStock)

	matchedLots, err := env.svc.GetRowPurchases(ctx, matchedRow.ID)
	require.NoError(t, err)
	require.Len(t, matchedLots, 2)
	assert.Equal(t, qty(5), matchedLots[0].QuantityUsedForValuation)
	assert.Equal(t, qty(2), matchedLots[1].QuantityUsedForValuation)
	assert.NotNil(t, matchedLots[0].ReceiptLineID)

	surplusLots, err := env.svc.GetRowPurchases(ctx, surplusRow.ID)
	require.NoError(t, err)
	require.Len(t, surplusLots, 2)
	assert.Equal(t, PurchaseTypeSurplusStock, surplusLots[1].Type)
	assert.True(t, surplusLots[1].Date.Equal(final.UntilDate))

	oversoldLots, err := env.svc.GetRowPurchases(ctx, byProduct[oversold].ID)
	require.NoError(t, err)
	assert.Empty(t, oversoldLots)

	// Scratch state is discarded by the final step.
	assert.Empty(t, env.scratch.stocks[report.ID])
	assert.Empty(t, env.scratch.purchases[report.ID])

	// create + one audit record per completed step
	assert.Len(t, env.audit.actions, 7)
}

func TestAdvanceStepRejectsGeneratedReport(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))

	err := env.svc.AdvanceStep(ctx, report.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReportCannotBeRegenerated))
}

func TestPrepareRemovesOtherUnfinishedReports(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	stale := mustCreate(t, env, id.New(), MethodLIFO)
	report := mustCreate(t, env, id.New(), MethodFIFO)

	require.NoError(t, env.svc.AdvanceStep(ctx, report.ID))

	_, err := env.reports.GetByID(ctx, stale.ID)
	assert.True(t, apperror.IsNotFound(err), "the other in-flight report must be gone")

	kept, err := env.reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, StepReportPrepared, kept.GenerationStep)
}

func TestCarryOverRoundTrip(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	warehouseID := id.New()
	ctx := context.Background()

	productX := id.New()
	env.addProduct(ProductFact{ProductID: productX, Number: "P-X", Name: "Anvil"})

	prevNet := types.MustMoney("100")
	env.seedPermanent(warehouseID, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), ReportRow{
		ID:                      id.New(),
		ProductID:               productX,
		Stock:                   qty(10),
		ValuationNet:            &prevNet,
		AveragePurchasePriceNet: types.MustMoney("10"),
	})

	// Same stock, no purchases in the new period.
	env.facts.levels = []ProductStock{{ProductID: productX, Quantity: qty(10)}}

	report := mustCreate(t, env, warehouseID, MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))

	rows, err := env.svc.GetReportRows(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ValuationNet)
	assert.True(t, rows[0].ValuationNet.Equal(prevNet),
		"carry-over must reproduce the previous valuation exactly, got %s", rows[0].ValuationNet)

	lots, err := env.svc.GetRowPurchases(ctx, rows[0].ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, PurchaseTypeCarryOver, lots[0].Type)
	assert.NotNil(t, lots[0].CarryOverRowID)
	assert.True(t, lots[0].Date.Equal(report.UntilDate.Add(-time.Second)))
}

func TestPersistReport(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))
	require.NoError(t, env.svc.PersistReport(ctx, report.ID))

	persisted, err := env.reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.False(t, persisted.Preview)
	assert.True(t, persisted.IsPermanent())
	assert.Contains(t, env.audit.actions, AuditActionPersist)
}

func TestPersistReportRequiresCompleteGeneration(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)

	err := env.svc.PersistReport(ctx, report.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReportNotCompletelyGenerated))
}

func TestPersistReportRejectsTruncatedCutoff(t *testing.T) {
	midDay := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	env := newTestEnv(midDay)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))

	err := env.svc.PersistReport(ctx, report.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReportDoesNotFullyIncludeDay))
}

func TestPersistReportIsNotIdempotent(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.Generate(ctx, report.ID))
	require.NoError(t, env.svc.PersistReport(ctx, report.ID))

	err := env.svc.PersistReport(ctx, report.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestDeleteReportOrdering(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	warehouseID := id.New()
	ctx := context.Background()

	older := env.seedPermanent(warehouseID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	newer := env.seedPermanent(warehouseID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	err := env.svc.DeleteReport(ctx, older.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeOlderReportCannotBeDeleted))

	require.NoError(t, env.svc.DeleteReport(ctx, newer.ID))
	require.NoError(t, env.svc.DeleteReport(ctx, older.ID))
}

func TestDeleteReportPurgesScratch(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.AdvanceStep(ctx, report.ID)) // prepare
	require.NoError(t, env.svc.AdvanceStep(ctx, report.ID)) // stock snapshot

	require.NoError(t, env.svc.DeleteReport(ctx, report.ID))

	_, err := env.reports.GetByID(ctx, report.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, env.scratch.stocks[report.ID])
}

func TestListDeletableReportIDs(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	w1 := id.New()
	w2 := id.New()
	w3 := id.New() // no permanent reports

	env.seedPermanent(w1, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	newest1 := env.seedPermanent(w1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	newest2 := env.seedPermanent(w2, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	ids, err := env.svc.ListDeletableReportIDs(ctx, []id.ID{w1, w2, w3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []id.ID{newest1.ID, newest2.ID}, ids)
}

func TestGetReportRowsRequiresGeneration(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)

	_, err := env.svc.GetReportRows(ctx, report.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReportNotCompletelyGenerated))
}

func TestResumeStalled(t *testing.T) {
	env := newTestEnv(afterDayEnd)
	ctx := context.Background()

	report := mustCreate(t, env, id.New(), MethodFIFO)
	require.NoError(t, env.svc.AdvanceStep(ctx, report.ID))

	resumed, err := env.svc.ResumeStalled(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, resumed)

	final, err := env.reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.True(t, final.Generated)
}

func TestResumeStalledNothingToDo(t *testing.T) {
	env := newTestEnv(afterDayEnd)

	resumed, err := env.svc.ResumeStalled(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, resumed)
}
