package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/limiter"
	"sol-fee-audit/internal/rpc"
	"sol-fee-audit/internal/service"
)

const namespace = "feeaudit"

// Metrics collects RPC and pipeline instrumentation on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequestsTotal   *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec
	rpcRetriesTotal    *prometheus.CounterVec
	pagesTotal         prometheus.Counter
	transactionsTotal  *prometheus.CounterVec

	reportEntries     prometheus.Gauge
	reportFeeLamports prometheus.Gauge
	reportSuccessRate prometheus.Gauge
	runDuration       prometheus.Gauge
	runTimestamp      prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		rpcRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc_client",
			Name:      "operations_total",
			Help:      "Count of Solana RPC operations.",
		}, []string{"operation", "status"}),
		rpcRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc_client",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Solana RPC operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		rpcRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "limiter",
			Name:      "retries_total",
			Help:      "Count of retries scheduled by the rate limiter.",
		}, []string{"operation", "reason"}),
		pagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pages_total",
			Help:      "Signature pages carrying in-window transactions.",
		}),
		transactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "transactions_total",
			Help:      "Transactions processed by outcome.",
		}, []string{"outcome", "reason"}),
		reportEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "entries",
			Help:      "Fee entries in the last report.",
		}),
		reportFeeLamports: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "fees_lamports",
			Help:      "Total fees paid in the last report, in lamports.",
		}),
		reportSuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "success_rate_percent",
			Help:      "Success rate of fee-paying transactions in the last report.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of the last analysis.",
		}),
		runTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful analysis.",
		}),
	}
}

// ObserveRequest records a single RPC attempt outcome and duration.
func (m *Metrics) ObserveRequest(operation string, err error, started time.Time) {
	status := requestStatus(err)
	m.rpcRequestsTotal.WithLabelValues(operation, status).Inc()
	m.rpcRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

// ObserveRetry records a retry scheduled by the limiter.
func (m *Metrics) ObserveRetry(operation string, state limiter.State, _ time.Duration) {
	reason := "transport"
	if state == limiter.StateWaiting {
		reason = "rate_limited"
	}
	m.rpcRetriesTotal.WithLabelValues(operation, reason).Inc()
}

// ObservePage records one discovery page handed to extraction.
func (m *Metrics) ObservePage(int) {
	m.pagesTotal.Inc()
}

// ObserveOutcome records one extraction outcome.
func (m *Metrics) ObserveOutcome(o fees.Outcome) {
	m.transactionsTotal.WithLabelValues(o.Kind.String(), string(o.Reason)).Inc()
}

// ObserveReport records the aggregates of a finished run.
func (m *Metrics) ObserveReport(r fees.FeeReport, elapsed time.Duration) {
	m.reportEntries.Set(float64(r.Count))
	m.reportFeeLamports.Set(float64(r.Total))
	if r.SuccessRate.Valid {
		m.reportSuccessRate.Set(r.SuccessRate.Decimal.InexactFloat64())
	}
	m.runDuration.Set(elapsed.Seconds())
	m.runTimestamp.SetToCurrentTime()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, rpc.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, rpc.ErrTransport):
		return "transport_error"
	case errors.Is(err, rpc.ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}

var (
	_ limiter.Observer = (*Metrics)(nil)
	_ service.Observer = (*Metrics)(nil)
)
