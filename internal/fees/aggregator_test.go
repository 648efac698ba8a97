package fees

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-fee-audit/internal/rpc"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustWindow(t *testing.T, hours int) Window {
	t.Helper()
	w, err := NewWindow(testNow, hours)
	require.NoError(t, err)
	return w
}

func entry(sig string, amount uint64, at time.Time, ok bool) FeeEntry {
	return FeeEntry{
		Ref:       rpc.TransactionRef{Signature: sig, BlockTime: at},
		Amount:    amount,
		Payer:     "wallet",
		Succeeded: ok,
	}
}

func TestAggregatorExampleReport(t *testing.T) {
	agg := NewAggregator(mustWindow(t, 24))
	agg.Add(entry("a", 100, testNow.Add(-time.Hour), true))
	agg.Add(entry("b", 250, testNow.Add(-2*time.Hour), true))
	agg.Add(entry("c", 150, testNow.Add(-3*time.Hour), false))

	r := agg.Report()
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, uint64(500), r.Total)
	require.True(t, r.Average.Valid)
	assert.Equal(t, "166.67", r.Average.Decimal.String())
	assert.True(t, r.Min.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, r.Max.Decimal.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, "66.67", r.SuccessRate.Decimal.String())
	assert.Equal(t, testNow.Add(-24*time.Hour), r.Cutoff)
	assert.True(t, r.HasData())
}

func TestAggregatorNoData(t *testing.T) {
	agg := NewAggregator(mustWindow(t, 6))
	r := agg.Report()

	assert.Equal(t, 0, r.Count)
	assert.Equal(t, uint64(0), r.Total)
	assert.False(t, r.Average.Valid)
	assert.False(t, r.Min.Valid)
	assert.False(t, r.Max.Valid)
	assert.False(t, r.SuccessRate.Valid)
	assert.False(t, r.HasData())
	assert.Empty(t, r.Hourly)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["average_lamports"])
	assert.Nil(t, decoded["min_lamports"])
	assert.Nil(t, decoded["max_lamports"])
	assert.Contains(t, decoded, "average_lamports")
}

func TestAggregatorCountsOutcomes(t *testing.T) {
	agg := NewAggregator(mustWindow(t, 1))
	cu := uint64(300)
	e := entry("a", 5000, testNow.Add(-time.Minute), true)
	e.ComputeUnits = &cu

	agg.Discovered(4)
	agg.Record(Outcome{Kind: OutcomeEntry, Entry: e})
	agg.Record(Outcome{Kind: OutcomeNotPayer})
	agg.Record(Outcome{Kind: OutcomeSkipped, Reason: SkipNotFound})
	agg.Record(Outcome{Kind: OutcomeSkipped, Reason: SkipMalformed})

	r := agg.Report()
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, 4, r.Discovered)
	assert.Equal(t, 1, r.NotPayer)
	assert.Equal(t, 2, r.SkippedTotal())
	assert.Equal(t, 1, r.Skipped[SkipNotFound])
	assert.Equal(t, uint64(300), r.ComputeUnits)
}

func TestAggregatorHourlySeriesFillsGaps(t *testing.T) {
	agg := NewAggregator(mustWindow(t, 6))
	agg.Add(entry("a", 10, time.Date(2024, 5, 1, 8, 15, 0, 0, time.UTC), true))
	agg.Add(entry("b", 20, time.Date(2024, 5, 1, 8, 45, 0, 0, time.UTC), false))
	agg.Add(entry("c", 30, time.Date(2024, 5, 1, 11, 5, 0, 0, time.UTC), true))

	series := agg.Report().Hourly
	require.Len(t, series, 4)

	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), series[0].Hour)
	assert.Equal(t, 2, series[0].Count)
	assert.Equal(t, 1, series[0].Succeeded)
	assert.Equal(t, uint64(30), series[0].Fees)
	assert.Equal(t, "50", series[0].SuccessRate.Decimal.String())

	assert.Equal(t, 0, series[1].Count)
	assert.False(t, series[1].SuccessRate.Valid)
	assert.Equal(t, 0, series[2].Count)

	assert.Equal(t, 1, series[3].Count)
	assert.Equal(t, "100", series[3].SuccessRate.Decimal.String())
}

func TestAggregatorSinkReceivesEntries(t *testing.T) {
	agg := NewAggregator(mustWindow(t, 1))
	var got []string
	agg.OnEntry(func(e FeeEntry) { got = append(got, e.Ref.Signature) })

	agg.Add(entry("x", 1, testNow, true))
	agg.Add(entry("y", 2, testNow, true))
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestAggregatorOrderIndependent(t *testing.T) {
	entries := []FeeEntry{
		entry("a", 5000, testNow.Add(-10*time.Minute), true),
		entry("b", 7000, testNow.Add(-70*time.Minute), false),
		entry("c", 5000, testNow.Add(-130*time.Minute), true),
		entry("d", 12000, testNow.Add(-5*time.Minute), true),
	}

	forward := NewAggregator(mustWindow(t, 3))
	for _, e := range entries {
		forward.Add(e)
	}
	backward := NewAggregator(mustWindow(t, 3))
	for i := len(entries) - 1; i >= 0; i-- {
		backward.Add(entries[i])
	}

	a, err := json.Marshal(forward.Report())
	require.NoError(t, err)
	b, err := json.Marshal(backward.Report())
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestLamportsToSOL(t *testing.T) {
	assert.Equal(t, "0.000005", LamportsToSOL(5000).String())
	assert.Equal(t, "1.5", LamportsToSOL(1_500_000_000).String())
	assert.Equal(t, "1.500000000", LamportsToSOL(1_500_000_000).StringFixed(9))
}

func TestWindow(t *testing.T) {
	_, err := NewWindow(testNow, 0)
	assert.Error(t, err)
	_, err = NewWindow(testNow, -3)
	assert.Error(t, err)
	_, err = NewWindow(testNow, int(MaxHours)+1)
	assert.Error(t, err)

	widest, err := NewWindow(testNow, int(MaxHours))
	require.NoError(t, err)
	assert.True(t, widest.Cutoff().Before(testNow))
	assert.True(t, widest.Contains(testNow.AddDate(-200, 0, 0)))

	w := mustWindow(t, 2)
	assert.True(t, w.Contains(w.Cutoff()))
	assert.True(t, w.Contains(testNow))
	assert.False(t, w.Contains(w.Cutoff().Add(-time.Second)))
	assert.False(t, w.Contains(testNow.Add(time.Second)))
}
