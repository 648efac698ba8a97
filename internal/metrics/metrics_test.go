package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/limiter"
	"sol-fee-audit/internal/rpc"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestObserveRequestStatus(t *testing.T) {
	m := New()
	start := time.Now().Add(-100 * time.Millisecond)

	cases := []struct {
		err    error
		status string
	}{
		{nil, "success"},
		{fmt.Errorf("%w: 429", rpc.ErrRateLimited), "rate_limited"},
		{fmt.Errorf("%w: eof", rpc.ErrTransport), "transport_error"},
		{fmt.Errorf("%w: invalid params", rpc.ErrRejected), "rejected"},
		{errors.New("boom"), "error"},
	}
	for _, c := range cases {
		if inc := delta(t, m.rpcRequestsTotal.WithLabelValues("get_transaction", c.status), func() {
			m.ObserveRequest("get_transaction", c.err, start)
		}); inc != 1 {
			t.Fatalf("expected %s counter increment, got %v", c.status, inc)
		}
	}
}

func TestObserveRetryReason(t *testing.T) {
	m := New()

	if inc := delta(t, m.rpcRetriesTotal.WithLabelValues("list_signatures", "rate_limited"), func() {
		m.ObserveRetry("list_signatures", limiter.StateWaiting, time.Second)
	}); inc != 1 {
		t.Fatalf("expected rate_limited retry increment, got %v", inc)
	}
	if inc := delta(t, m.rpcRetriesTotal.WithLabelValues("list_signatures", "transport"), func() {
		m.ObserveRetry("list_signatures", limiter.StateRetrying, time.Second)
	}); inc != 1 {
		t.Fatalf("expected transport retry increment, got %v", inc)
	}
}

func TestObservePipeline(t *testing.T) {
	m := New()

	m.ObservePage(3)
	m.ObservePage(1)
	if got := testutil.ToFloat64(m.pagesTotal); got != 2 {
		t.Fatalf("expected 2 pages, got %v", got)
	}

	m.ObserveOutcome(fees.Outcome{Kind: fees.OutcomeEntry})
	m.ObserveOutcome(fees.Outcome{Kind: fees.OutcomeSkipped, Reason: fees.SkipNotFound})
	if got := testutil.ToFloat64(m.transactionsTotal.WithLabelValues("skipped", "not_found")); got != 1 {
		t.Fatalf("expected skipped/not_found = 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.transactionsTotal.WithLabelValues("entry", "")); got != 1 {
		t.Fatalf("expected entry = 1, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveReport(fees.FeeReport{
		Count:       3,
		Total:       500,
		SuccessRate: decimal.NewNullDecimal(decimal.RequireFromString("66.67")),
	}, 2*time.Second)

	path := filepath.Join(t.TempDir(), "feeaudit.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		"feeaudit_report_entries 3",
		"feeaudit_report_fees_lamports 500",
		"feeaudit_report_success_rate_percent 66.67",
		"feeaudit_run_duration_seconds 2",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, body)
		}
	}
}
