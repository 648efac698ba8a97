package fees

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HourlyBucket groups entries whose block time falls in [Hour, Hour+1h).
// SuccessRate is a percentage, invalid for hours without entries.
type HourlyBucket struct {
	Hour        time.Time           `json:"hour"`
	Count       int                 `json:"count"`
	Succeeded   int                 `json:"succeeded"`
	Fees        uint64              `json:"fees_lamports"`
	SuccessRate decimal.NullDecimal `json:"success_rate"`
}

// FeeReport is the immutable result of one analysis. Average, Min, Max and
// SuccessRate are invalid (null) when Count is zero.
type FeeReport struct {
	Window       Window              `json:"window"`
	Cutoff       time.Time           `json:"cutoff"`
	Count        int                 `json:"entries_count"`
	Total        uint64              `json:"total_lamports"`
	Average      decimal.NullDecimal `json:"average_lamports"`
	Min          decimal.NullDecimal `json:"min_lamports"`
	Max          decimal.NullDecimal `json:"max_lamports"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	SuccessRate  decimal.NullDecimal `json:"success_rate"`
	ComputeUnits uint64              `json:"compute_units"`
	Discovered   int                 `json:"discovered"`
	NotPayer     int                 `json:"not_payer"`
	Skipped      map[SkipReason]int  `json:"skipped"`
	Hourly       []HourlyBucket      `json:"hourly"`
}

// HasData reports whether at least one fee entry was aggregated.
func (r FeeReport) HasData() bool {
	return r.Count > 0
}

// TotalSOL converts Total to SOL for presentation.
func (r FeeReport) TotalSOL() decimal.Decimal {
	return LamportsToSOL(r.Total)
}

// SkippedTotal sums skipped transactions over all reasons.
func (r FeeReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// LamportsToSOL converts an amount in lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// Aggregator folds entries into a FeeReport. Safe for concurrent use.
type Aggregator struct {
	window Window

	mu           sync.Mutex
	sink         func(FeeEntry)
	count        int
	sum          uint64
	min          uint64
	max          uint64
	succeeded    int
	computeUnits uint64
	discovered   int
	notPayer     int
	skipped      map[SkipReason]int
	hourly       map[int64]*HourlyBucket
}

// NewAggregator returns an empty aggregator for window.
func NewAggregator(window Window) *Aggregator {
	return &Aggregator{
		window:  window,
		skipped: make(map[SkipReason]int),
		hourly:  make(map[int64]*HourlyBucket),
	}
}

// OnEntry registers fn to receive every added entry, for row-level exports.
// Calls happen under the aggregator lock; fn must not call back into it.
func (a *Aggregator) OnEntry(fn func(FeeEntry)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = fn
}

// Add folds one entry.
func (a *Aggregator) Add(e FeeEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 || e.Amount < a.min {
		a.min = e.Amount
	}
	if a.count == 0 || e.Amount > a.max {
		a.max = e.Amount
	}
	a.count++
	a.sum += e.Amount
	if e.Succeeded {
		a.succeeded++
	}
	if e.ComputeUnits != nil {
		a.computeUnits += *e.ComputeUnits
	}

	hour := e.BlockTime().UTC().Truncate(time.Hour)
	bucket, ok := a.hourly[hour.Unix()]
	if !ok {
		bucket = &HourlyBucket{Hour: hour}
		a.hourly[hour.Unix()] = bucket
	}
	bucket.Count++
	bucket.Fees += e.Amount
	if e.Succeeded {
		bucket.Succeeded++
	}

	if a.sink != nil {
		a.sink(e)
	}
}

// Discovered counts refs emitted by discovery.
func (a *Aggregator) Discovered(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discovered += n
}

// NotPayer counts a transaction in scope that another account paid for.
func (a *Aggregator) NotPayer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notPayer++
}

// Skip counts a skipped record.
func (a *Aggregator) Skip(reason SkipReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped[reason]++
}

// Record dispatches an extraction outcome.
func (a *Aggregator) Record(o Outcome) {
	switch o.Kind {
	case OutcomeEntry:
		a.Add(o.Entry)
	case OutcomeNotPayer:
		a.NotPayer()
	case OutcomeSkipped:
		a.Skip(o.Reason)
	}
}

// Report builds the FeeReport from the current state.
func (a *Aggregator) Report() FeeReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := FeeReport{
		Window:       a.window,
		Cutoff:       a.window.Cutoff(),
		Count:        a.count,
		Total:        a.sum,
		Succeeded:    a.succeeded,
		Failed:       a.count - a.succeeded,
		ComputeUnits: a.computeUnits,
		Discovered:   a.discovered,
		NotPayer:     a.notPayer,
		Skipped:      make(map[SkipReason]int, len(a.skipped)),
		Hourly:       a.hourlySeries(),
	}
	for reason, n := range a.skipped {
		report.Skipped[reason] = n
	}

	if a.count > 0 {
		report.Average = decimal.NewNullDecimal(average(a.sum, a.count))
		report.Min = decimal.NewNullDecimal(decimal.NewFromBigInt(new(big.Int).SetUint64(a.min), 0))
		report.Max = decimal.NewNullDecimal(decimal.NewFromBigInt(new(big.Int).SetUint64(a.max), 0))
		report.SuccessRate = decimal.NewNullDecimal(percentage(a.succeeded, a.count))
	}
	return report
}

// MaxFilledHours caps the span over which empty hours are filled in.
const MaxFilledHours = 24 * 366

// hourlySeries returns a contiguous hour series from the earliest to the latest
// bucket; hours without entries are included with zero counts. Spans longer
// than MaxFilledHours list only the hours that have entries.
func (a *Aggregator) hourlySeries() []HourlyBucket {
	if len(a.hourly) == 0 {
		return nil
	}

	keys := make([]int64, 0, len(a.hourly))
	for k := range a.hourly {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	first := time.Unix(keys[0], 0).UTC()
	last := time.Unix(keys[len(keys)-1], 0).UTC()
	if last.Sub(first) > MaxFilledHours*time.Hour {
		series := make([]HourlyBucket, 0, len(keys))
		for _, k := range keys {
			b := *a.hourly[k]
			b.SuccessRate = decimal.NewNullDecimal(percentage(b.Succeeded, b.Count))
			series = append(series, b)
		}
		return series
	}

	series := make([]HourlyBucket, 0, int(last.Sub(first)/time.Hour)+1)
	for hour := first; !hour.After(last); hour = hour.Add(time.Hour) {
		bucket := HourlyBucket{Hour: hour}
		if b, ok := a.hourly[hour.Unix()]; ok {
			bucket = *b
			bucket.SuccessRate = decimal.NewNullDecimal(percentage(b.Succeeded, b.Count))
		}
		series = append(series, bucket)
	}
	return series
}

func average(sum uint64, count int) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sum), 0).
		Div(decimal.NewFromInt(int64(count))).
		Round(2)
}

func percentage(part, total int) decimal.Decimal {
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}
