package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"sol-fee-audit/internal/discovery"
	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/limiter"
	"sol-fee-audit/internal/rpc"
)

// DefaultWorkers bounds concurrent transaction fetches within a page.
const DefaultWorkers = 5

// Options configure the fee pipeline.
type Options struct {
	Workers  int
	PageSize int
	// Progress, when set, receives a progress bar of processed transactions.
	Progress io.Writer
	// OnEntry, when set, receives every fee entry as it is aggregated.
	OnEntry  func(fees.FeeEntry)
	Observer Observer
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	ObservePage(refs int)
	ObserveOutcome(o fees.Outcome)
}

type nopObserver struct{}

func (nopObserver) ObservePage(int) {}
func (nopObserver) ObserveOutcome(fees.Outcome) {}

// Result is a finished analysis.
type Result struct {
	Report    fees.FeeReport
	Discovery discovery.Stats
	Limiter   limiter.Stats
	Elapsed   time.Duration
}

// Service drives discovery, extraction, and aggregation for one wallet.
type Service struct {
	api    rpc.API
	ctrl   *limiter.Controller
	opts   Options
	logger zerolog.Logger
}

// New constructs the pipeline. Every call to source is routed through ctrl.
func New(opts Options, source rpc.API, ctrl *limiter.Controller, logger zerolog.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Service{
		api:    limiter.Guard(source, ctrl),
		ctrl:   ctrl,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Analyze builds the fee report of wallet over window. Any page-level failure
// or rate-limit exhaustion aborts the run; no partial report is returned.
func (s *Service) Analyze(ctx context.Context, wallet string, window fees.Window) (Result, error) {
	started := time.Now()

	agg := fees.NewAggregator(window)
	if s.opts.OnEntry != nil {
		agg.OnEntry(s.opts.OnEntry)
	}
	extractor := fees.NewExtractor(s.api, s.logger)
	walker := discovery.New(s.api, s.opts.PageSize, s.logger)
	bar := s.newProgress()

	s.logger.Info().
		Str("wallet", wallet).
		Int("hours", window.Hours).
		Time("cutoff", window.Cutoff()).
		Int("workers", s.opts.Workers).
		Msg("starting fee analysis")

	stats, err := walker.Walk(ctx, wallet, window, func(ctx context.Context, refs []rpc.TransactionRef) error {
		agg.Discovered(len(refs))
		s.opts.Observer.ObservePage(len(refs))
		return s.processPage(ctx, wallet, refs, agg, extractor, bar)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return Result{}, fmt.Errorf("analyze %s: %w", wallet, err)
	}

	res := Result{
		Report:    agg.Report(),
		Discovery: stats,
		Limiter:   s.ctrl.Stats(),
		Elapsed:   time.Since(started),
	}

	s.logger.Info().
		Int("entries", res.Report.Count).
		Uint64("total_lamports", res.Report.Total).
		Int("skipped", res.Report.SkippedTotal()).
		Int("not_payer", res.Report.NotPayer).
		Int("pages", stats.Pages).
		Int("requests", res.Limiter.Requests).
		Dur("elapsed", res.Elapsed).
		Msg("fee analysis complete")
	return res, nil
}

// processPage fetches the page's transactions on a bounded pool. The pool is
// drained before the next page is requested.
func (s *Service) processPage(ctx context.Context, wallet string, refs []rpc.TransactionRef, agg *fees.Aggregator, extractor *fees.Extractor, bar *progressbar.ProgressBar) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := extractor.Extract(gctx, wallet, ref)
			if err != nil {
				return err
			}
			agg.Record(out)
			s.opts.Observer.ObserveOutcome(out)
			if bar != nil {
				if err := bar.Add(1); err != nil {
					s.logger.Debug().Err(err).Msg("failed to update progress bar")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Service) newProgress() *progressbar.ProgressBar {
	if s.opts.Progress == nil {
		return nil
	}
	return progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWriter(s.opts.Progress),
		progressbar.OptionSetDescription("fetching transactions"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)
}
