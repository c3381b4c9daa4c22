package valuation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockval/internal/core/id"
	"stockval/internal/core/types"
)

func qty(v float64) types.Quantity {
	return types.NewQuantityFromFloat64(v)
}

func lot(date time.Time, quantity float64, price string) TempPurchase {
	return TempPurchase{
		ID:           id.New(),
		Type:         PurchaseTypePurchase,
		Date:         date,
		UnitPriceNet: types.MustMoney(price),
		Quantity:     qty(quantity),
	}
}

var (
	day1 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	day3 = time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
)

func TestOrderLots(t *testing.T) {
	a := lot(day1, 5, "10")
	b := lot(day2, 5, "12")
	sameDateCheap := lot(day2, 3, "8")

	tests := []struct {
		name   string
		method CostingMethod
		lots   []TempPurchase
		want   []id.ID
	}{
		{
			name:   "fifo ascending date",
			method: MethodFIFO,
			lots:   []TempPurchase{b, a},
			want:   []id.ID{a.ID, b.ID},
		},
		{
			name:   "lifo descending date",
			method: MethodLIFO,
			lots:   []TempPurchase{a, b},
			want:   []id.ID{b.ID, a.ID},
		},
		{
			name:   "fifo same date ascending price",
			method: MethodFIFO,
			lots:   []TempPurchase{b, sameDateCheap, a},
			want:   []id.ID{a.ID, sameDateCheap.ID, b.ID},
		},
		{
			name:   "lifo same date ascending price",
			method: MethodLIFO,
			lots:   []TempPurchase{b, a, sameDateCheap},
			want:   []id.ID{sameDateCheap.ID, b.ID, a.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered := orderLots(tt.method, tt.lots)
			got := make([]id.ID, 0, len(ordered))
			for _, l := range ordered {
				got = append(got, l.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateOrderedFIFO(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 5, "10"),
		lot(day2, 5, "12"),
	}

	result := rateOrdered(MethodFIFO, qty(7), types.Zero(), lots, 2)

	require.NotNil(t, result.ValuationNet)
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("74")),
		"want 74, got %s", result.ValuationNet)
	assert.True(t, result.SurplusStock.IsZero())

	require.Len(t, result.Lots, 2)
	assert.Equal(t, qty(5), result.Lots[0].QuantityUsed)
	assert.Equal(t, qty(2), result.Lots[1].QuantityUsed)
}

func TestRateOrderedLIFO(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 5, "10"),
		lot(day2, 5, "12"),
	}

	result := rateOrdered(MethodLIFO, qty(7), types.Zero(), lots, 2)

	require.NotNil(t, result.ValuationNet)
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("80")),
		"want 80, got %s", result.ValuationNet)

	require.Len(t, result.Lots, 2)
	// LIFO order: the newer lot is consumed fully first.
	assert.Equal(t, qty(5), result.Lots[0].QuantityUsed)
	assert.True(t, result.Lots[0].UnitPriceNet.Equal(types.MustMoney("12")))
	assert.Equal(t, qty(2), result.Lots[1].QuantityUsed)
}

func TestRateOrderedSurplus(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 4, "10"),
	}
	surplusPrice := types.MustMoney("9.50")

	result := rateOrdered(MethodFIFO, qty(10), surplusPrice, lots, 2)

	require.NotNil(t, result.ValuationNet)
	// 4x10 matched + 6x9.50 surplus = 97
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("97")),
		"want 97, got %s", result.ValuationNet)
	assert.Equal(t, qty(6), result.SurplusStock)
	assert.True(t, result.SurplusPriceNet.Equal(surplusPrice))
	assert.Equal(t, qty(4), result.Lots[0].QuantityUsed)
}

func TestRateOrderedRounding(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 3, "3.333"),
	}

	result := rateOrdered(MethodFIFO, qty(3), types.Zero(), lots, 2)

	require.NotNil(t, result.ValuationNet)
	// 3 x 3.333 = 9.999 rounds to 10.00 at two decimals
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("10")),
		"want 10, got %s", result.ValuationNet)
}

func TestRateOrderedNegativeLotIndeterminate(t *testing.T) {
	bad := lot(day2, -2, "12")
	lots := []TempPurchase{
		lot(day1, 5, "10"),
		bad,
	}

	result := rateOrdered(MethodFIFO, qty(8), types.Zero(), lots, 2)

	assert.Nil(t, result.ValuationNet)
	assert.True(t, result.SurplusStock.IsZero())
	for _, l := range result.Lots {
		assert.True(t, l.QuantityUsed.IsZero())
	}
}

func TestRateAverage(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 5, "10"),
		lot(day2, 5, "12"),
	}
	avg := types.MustMoney("11")

	result := rateAverage(qty(7), avg, lots, 2)

	require.NotNil(t, result.ValuationNet)
	// 7 x 11 = 77, regardless of lot prices
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("77")),
		"want 77, got %s", result.ValuationNet)

	// Consumption is still recorded date-ascending, capped at stock.
	assert.Equal(t, qty(5), result.Lots[0].QuantityUsed)
	assert.Equal(t, qty(2), result.Lots[1].QuantityUsed)
}

func TestRateAverageSurplusStillValued(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 4, "10"),
	}
	avg := types.MustMoney("10")

	result := rateAverage(qty(10), avg, lots, 2)

	require.NotNil(t, result.ValuationNet)
	// Average values the whole stock: 10 x 10 = 100.
	assert.True(t, result.ValuationNet.Equal(types.MustMoney("100")))
	assert.Equal(t, qty(6), result.SurplusStock)
}

func TestRateShortfall(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 5, "10"),
	}
	ts := TempStock{
		Stock:           0,
		Shortfall:       true,
		AveragePriceNet: types.MustMoney("10"),
	}

	for _, method := range []CostingMethod{MethodFIFO, MethodLIFO, MethodAverage} {
		t.Run(string(method), func(t *testing.T) {
			result := rate(method, ts, lots, 2)

			assert.Nil(t, result.ValuationNet)
			require.Len(t, result.Lots, 1)
			assert.True(t, result.Lots[0].QuantityUsed.IsZero())
		})
	}
}

func TestConsumeLotsUsageInvariant(t *testing.T) {
	lots := []TempPurchase{
		lot(day1, 3, "10"),
		lot(day2, 4, "11"),
		lot(day3, 5, "12"),
	}

	tests := []struct {
		name     string
		stock    types.Quantity
		wantUsed types.Quantity
		wantRest types.Quantity
	}{
		{"stock below first lot", qty(2), qty(2), 0},
		{"stock equals total", qty(12), qty(12), 0},
		{"stock above total", qty(15), qty(12), qty(3)},
		{"zero stock", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, remaining, rated, ok := consumeLots(tt.stock, lots)
			require.True(t, ok)

			var used types.Quantity
			for _, l := range rated {
				used += l.QuantityUsed
			}
			assert.Equal(t, tt.wantUsed, used)
			assert.Equal(t, tt.wantRest, remaining)
		})
	}
}
