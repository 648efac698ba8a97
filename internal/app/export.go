package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"sol-fee-audit/internal/fees"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// writeReportCSV writes one row per fee entry, the hourly series, and a summary block.
func writeReportCSV(path string, entries []fees.FeeEntry, report fees.FeeReport) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	rows := [][]string{{"timestamp", "signature", "success", "fee_lamports", "compute_units"}}
	for _, e := range entries {
		cu := "N/A"
		if e.ComputeUnits != nil {
			cu = strconv.FormatUint(*e.ComputeUnits, 10)
		}
		rows = append(rows, []string{
			e.BlockTime().UTC().Format(csvTimeLayout),
			e.Ref.Signature,
			strconv.FormatBool(e.Succeeded),
			strconv.FormatUint(e.Amount, 10),
			cu,
		})
	}

	rows = append(rows, []string{}, []string{"HOURLY"}, []string{"hour", "successful", "total", "fees_lamports", "success_rate"})
	for _, b := range report.Hourly {
		rate := noData
		if b.SuccessRate.Valid {
			rate = formatDecimal(b.SuccessRate.Decimal, 2)
		}
		rows = append(rows, []string{
			b.Hour.Format("2006-01-02 15:00"),
			strconv.Itoa(b.Succeeded),
			strconv.Itoa(b.Count),
			strconv.FormatUint(b.Fees, 10),
			rate,
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"SUMMARY"},
		[]string{"time_period", report.Cutoff.Format(csvTimeLayout) + " to " + report.Window.Now.Format(csvTimeLayout)},
		[]string{"total_transactions", strconv.Itoa(report.Count)},
		[]string{"successful_transactions", strconv.Itoa(report.Succeeded)},
		[]string{"failed_transactions", strconv.Itoa(report.Failed)},
		[]string{"success_rate", percentOrNoData(report.SuccessRate)},
		[]string{"total_fees_sol", report.TotalSOL().StringFixed(9)},
		[]string{"total_fees_lamports", strconv.FormatUint(report.Total, 10)},
		[]string{"average_fee_lamports", nullOrNoData(report.Average, 2)},
		[]string{"min_fee_lamports", nullOrNoData(report.Min, 0)},
		[]string{"max_fee_lamports", nullOrNoData(report.Max, 0)},
		[]string{"compute_units", strconv.FormatUint(report.ComputeUnits, 10)},
		[]string{"skipped", strconv.Itoa(report.SkippedTotal())},
	)

	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return nil
}

// writeHourlyPNG charts hourly fees and success rate. It reports false without
// writing when fewer than two hours are available.
func writeHourlyPNG(path string, hourly []fees.HourlyBucket) (bool, error) {
	if len(hourly) < 2 {
		return false, nil
	}
	if err := ensureDir(path); err != nil {
		return false, err
	}

	x := make([]time.Time, len(hourly))
	feeValues := make([]float64, len(hourly))
	var rateX []time.Time
	var rateValues []float64
	maxFee := 0.0

	for i, b := range hourly {
		x[i] = b.Hour
		feeValues[i] = float64(b.Fees)
		if feeValues[i] > maxFee {
			maxFee = feeValues[i]
		}
		if b.SuccessRate.Valid {
			rateX = append(rateX, b.Hour)
			rateValues = append(rateValues, b.SuccessRate.Decimal.InexactFloat64())
		}
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeHourValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Fees (lamports)",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: maxFee*1.1 + 1,
			},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name:  "Success rate (%)",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Fees",
				XValues: x,
				YValues: feeValues,
			},
		},
	}
	if len(rateX) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Success rate %",
			XValues: rateX,
			YValues: rateValues,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return false, err
	}
	return true, nil
}

func nullOrNoData(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return noData
	}
	return formatDecimal(d.Decimal, places)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
