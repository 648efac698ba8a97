package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/service"
)

const noData = "no data"

// reportView is the machine-readable rendering of a run.
type reportView struct {
	Wallet   string         `json:"wallet"`
	Endpoint string         `json:"endpoint"`
	Report   fees.FeeReport `json:"report"`
	TotalSOL string         `json:"total_sol"`
	Elapsed  string         `json:"elapsed"`
	Requests int            `json:"rpc_requests"`
	Pages    int            `json:"pages"`
}

func (a *App) render(wallet, endpoint string, res service.Result) error {
	view := reportView{
		Wallet:   wallet,
		Endpoint: endpoint,
		Report:   res.Report,
		TotalSOL: res.Report.TotalSOL().StringFixed(9),
		Elapsed:  res.Elapsed.Round(time.Millisecond).String(),
		Requests: res.Limiter.Requests,
		Pages:    res.Discovery.Pages,
	}
	if strings.EqualFold(a.Config.Output.Format, "json") {
		return renderJSON(a.Out, view)
	}
	return renderText(a.Out, view)
}

func renderJSON(w io.Writer, view reportView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func renderText(w io.Writer, view reportView) error {
	r := view.Report
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Wallet\t%s\n", view.Wallet)
	fmt.Fprintf(tw, "RPC endpoint\t%s\n", view.Endpoint)
	fmt.Fprintf(tw, "Window (UTC)\t%s to %s (%dh)\n", r.Cutoff.Format(time.DateTime), r.Window.Now.Format(time.DateTime), r.Window.Hours)
	fmt.Fprintf(tw, "Fee-paying transactions\t%d\n", r.Count)
	if !r.HasData() {
		fmt.Fprintf(tw, "Note\tno fee-paying transactions in window\n")
	}
	fmt.Fprintf(tw, "Total fees\t%d lamports (%s SOL)\n", r.Total, view.TotalSOL)
	fmt.Fprintf(tw, "Average fee\t%s\n", lamportsOrNoData(r.Average, 2))
	fmt.Fprintf(tw, "Min fee\t%s\n", lamportsOrNoData(r.Min, 0))
	fmt.Fprintf(tw, "Max fee\t%s\n", lamportsOrNoData(r.Max, 0))
	fmt.Fprintf(tw, "Succeeded / failed\t%d / %d\n", r.Succeeded, r.Failed)
	fmt.Fprintf(tw, "Success rate\t%s\n", percentOrNoData(r.SuccessRate))
	fmt.Fprintf(tw, "Compute units\t%d\n", r.ComputeUnits)
	fmt.Fprintf(tw, "Discovered in window\t%d\n", r.Discovered)
	fmt.Fprintf(tw, "Paid by another account\t%d\n", r.NotPayer)
	fmt.Fprintf(tw, "Skipped\t%s\n", formatSkipped(r.Skipped))
	fmt.Fprintf(tw, "RPC requests\t%d over %d pages\n", view.Requests, view.Pages)
	fmt.Fprintf(tw, "Elapsed\t%s\n", view.Elapsed)

	return tw.Flush()
}

func lamportsOrNoData(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return noData
	}
	return nullOrNoData(d, places) + " lamports"
}

func percentOrNoData(d decimal.NullDecimal) string {
	if !d.Valid {
		return noData
	}
	return formatDecimal(d.Decimal, 2) + "%"
}

func formatSkipped(skipped map[fees.SkipReason]int) string {
	total := 0
	parts := make([]string, 0, len(skipped))
	for reason, n := range skipped {
		if n == 0 {
			continue
		}
		total += n
		parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
	}
	if total == 0 {
		return "0"
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d (%s)", total, strings.Join(parts, ", "))
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
