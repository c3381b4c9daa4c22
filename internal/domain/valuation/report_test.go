package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockval/internal/core/id"
)

func TestGenerationStepNext(t *testing.T) {
	steps := []GenerationStep{
		StepReportCreated,
		StepReportPrepared,
		StepStocksCalculated,
		StepPurchasesCalculated,
		StepAveragePriceCalculated,
		StepStockRated,
		StepReportSaved,
	}

	for i := 0; i < len(steps)-1; i++ {
		assert.Equal(t, steps[i+1], steps[i].Next())
	}

	// Terminal step stays terminal.
	assert.Equal(t, StepReportSaved, StepReportSaved.Next())
}

func TestNewReport(t *testing.T) {
	warehouseID := id.New()
	day := time.Date(2026, 3, 15, 17, 42, 11, 0, time.UTC)

	r := NewReport(warehouseID, day, "Europe/Berlin", MethodFIFO)

	assert.Equal(t, warehouseID, r.WarehouseID)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), r.ReportingDay)
	assert.True(t, r.Preview)
	assert.False(t, r.Generated)
	assert.Equal(t, StepReportCreated, r.GenerationStep)
	assert.False(t, id.IsNil(r.ID))
}

func TestReportValidate(t *testing.T) {
	valid := func() *Report {
		return NewReport(id.New(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "UTC", MethodAverage)
	}

	tests := []struct {
		name    string
		mutate  func(*Report)
		wantErr bool
	}{
		{"valid", func(r *Report) {}, false},
		{"nil warehouse", func(r *Report) { r.WarehouseID = id.Nil() }, true},
		{"zero reporting day", func(r *Report) { r.ReportingDay = time.Time{} }, true},
		{"unknown method", func(r *Report) { r.Method = "wild_guess" }, true},
		{"bad time zone", func(r *Report) { r.TimeZone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEndOfReportingDay(t *testing.T) {
	tests := []struct {
		name     string
		timeZone string
		want     time.Time
	}{
		{
			name:     "utc",
			timeZone: "UTC",
			want:     time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "berlin winter",
			timeZone: "Europe/Berlin",
			want:     time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC),
		},
		{
			name:     "tokyo",
			timeZone: "Asia/Tokyo",
			want:     time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReport(id.New(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), tt.timeZone, MethodFIFO)
			end, err := r.EndOfReportingDay()
			require.NoError(t, err)
			assert.True(t, end.Equal(tt.want), "want %s, got %s", tt.want, end)
		})
	}
}

func TestTruncatedUntilDate(t *testing.T) {
	r := NewReport(id.New(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "UTC", MethodFIFO)

	r.UntilDate = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	assert.True(t, r.TruncatedUntilDate())

	r.UntilDate = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	assert.False(t, r.TruncatedUntilDate())
}

func TestIsPermanent(t *testing.T) {
	r := NewReport(id.New(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "UTC", MethodFIFO)
	assert.False(t, r.IsPermanent())

	r.Generated = true
	assert.False(t, r.IsPermanent(), "generated preview is not permanent")

	r.Preview = false
	assert.True(t, r.IsPermanent())
}

func TestCostingMethodIsValid(t *testing.T) {
	assert.True(t, MethodFIFO.IsValid())
	assert.True(t, MethodLIFO.IsValid())
	assert.True(t, MethodAverage.IsValid())
	assert.False(t, CostingMethod("").IsValid())
	assert.False(t, CostingMethod("FIFO").IsValid())
}
