package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sol-fee-audit/internal/config"
	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/limiter"
	"sol-fee-audit/internal/metrics"
	"sol-fee-audit/internal/rpc"
	"sol-fee-audit/internal/service"
	"sol-fee-audit/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives the rendered report; Err receives the progress bar.
	Out io.Writer
	Err io.Writer
	// Now anchors the lookback window.
	Now func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		Err:    os.Stderr,
		Now:    time.Now,
	}
}

// InputError is a user input problem detected before the pipeline starts.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// AnalyzeOptions hold the positional inputs of one analysis.
type AnalyzeOptions struct {
	Wallet string
	Hours  int
	// Endpoint overrides rpc.endpoint when set.
	Endpoint string
}

// Validate checks the inputs and returns *InputError on failure.
func (o AnalyzeOptions) Validate() error {
	if err := rpc.ValidateAddress(o.Wallet); err != nil {
		return &InputError{Field: "wallet_address", Err: err}
	}
	if o.Hours <= 0 {
		return &InputError{Field: "hours_to_look_back", Err: fmt.Errorf("must be a positive integer, got %d", o.Hours)}
	}
	if int64(o.Hours) > fees.MaxHours {
		return &InputError{Field: "hours_to_look_back", Err: fmt.Errorf("must be at most %d, got %d", fees.MaxHours, o.Hours)}
	}
	if o.Endpoint != "" {
		if err := rpc.ValidateEndpoint(o.Endpoint); err != nil {
			return &InputError{Field: "rpc_endpoint", Err: err}
		}
	}
	return nil
}

// Analyze runs the fee pipeline for one wallet, renders the report on Out and
// writes the configured exports. It returns before any output on failure.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts.Wallet = strings.TrimSpace(opts.Wallet)
	if err := opts.Validate(); err != nil {
		return err
	}
	window, err := fees.NewWindow(a.now(), opts.Hours)
	if err != nil {
		return &InputError{Field: "hours_to_look_back", Err: err}
	}

	endpoint := a.Config.RPC.Endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}

	client, err := rpc.NewClient(ctx, rpc.Options{
		Endpoint:   endpoint,
		Timeout:    a.Config.RPC.RequestTimeout,
		Commitment: a.Config.RPC.Commitment,
		UserAgent:  a.Config.RPC.UserAgent,
	}, a.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	m := metrics.New()
	ctrl := limiter.New(a.Config.Limiter.Policy(), a.Logger, m)

	var rows entryRows
	svcOpts := service.Options{
		Workers:  a.Config.Pipeline.Workers,
		PageSize: a.Config.RPC.PageSize,
		Observer: m,
	}
	if a.Config.Output.CSVPath != "" {
		svcOpts.OnEntry = rows.add
	}
	if a.Config.Output.Progress && a.Err != nil {
		svcOpts.Progress = a.Err
	}

	a.Logger.Info().
		Str("endpoint", endpoint).
		Str("version", version.Version).
		Msg("analyzing wallet fees")

	res, err := service.New(svcOpts, client, ctrl, a.Logger).Analyze(ctx, opts.Wallet, window)
	if err != nil {
		a.writeMetrics(m)
		if errors.Is(err, context.Canceled) {
			a.Logger.Warn().Msg("analysis interrupted")
		}
		return err
	}
	m.ObserveReport(res.Report, res.Elapsed)
	a.writeMetrics(m)

	if err := a.render(opts.Wallet, endpoint, res); err != nil {
		return err
	}

	if path := a.Config.Output.CSVPath; path != "" {
		if err := writeReportCSV(path, rows.sorted(), res.Report); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		a.Logger.Info().Str("path", path).Msg("csv exported")
	}
	if path := a.Config.Output.PNGPath; path != "" {
		written, err := writeHourlyPNG(path, res.Report.Hourly)
		if err != nil {
			return fmt.Errorf("export png: %w", err)
		}
		if written {
			a.Logger.Info().Str("path", path).Msg("chart exported")
		} else {
			a.Logger.Warn().Int("hours", len(res.Report.Hourly)).Msg("not enough hourly data for a chart; skipped")
		}
	}
	return nil
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *App) writeMetrics(m *metrics.Metrics) {
	path := a.Config.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := ensureDir(path); err != nil {
		a.Logger.Error().Err(err).Str("path", path).Msg("failed to prepare metrics directory")
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		a.Logger.Error().Err(err).Str("path", path).Msg("failed to write metrics")
	}
}

// entryRows collects fee entries from concurrent workers for row-level export.
type entryRows struct {
	mu      sync.Mutex
	entries []fees.FeeEntry
}

func (r *entryRows) add(e fees.FeeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// sorted returns the entries newest first, ties broken by signature.
func (r *entryRows) sorted() []fees.FeeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]fees.FeeEntry(nil), r.entries...)
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].BlockTime(), out[j].BlockTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Ref.Signature < out[j].Ref.Signature
	})
	return out
}
