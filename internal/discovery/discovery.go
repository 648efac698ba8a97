package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"sol-fee-audit/internal/fees"
	"sol-fee-audit/internal/rpc"
)

// DefaultPageSize is the signature page size used when none is configured.
const DefaultPageSize = 100

// SignatureLister lists a wallet's signatures, newest first.
type SignatureLister interface {
	ListSignatures(ctx context.Context, address, before string, limit int) (rpc.SignaturePage, error)
}

// VisitFunc receives the in-window refs of one page, in discovery order.
type VisitFunc func(ctx context.Context, refs []rpc.TransactionRef) error

// Stats summarises a walk.
type Stats struct {
	Pages      int
	Emitted    int
	Untimed    int
	Future     int
	Duplicates int
	// ReachedCutoff is false when history ran out before the window's cutoff.
	ReachedCutoff bool
}

// PageError is a fatal failure to list one page.
type PageError struct {
	Page   int
	Cursor string
	Err    error
}

func (e *PageError) Error() string {
	cursor := e.Cursor
	if cursor == "" {
		cursor = "<newest>"
	}
	return fmt.Sprintf("discovery page %d (before %s): %v", e.Page, cursor, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

var errStuckCursor = errors.New("next cursor did not advance")

// Discoverer walks a wallet's history backwards until the window's cutoff.
type Discoverer struct {
	lister   SignatureLister
	pageSize int
	logger   zerolog.Logger
}

// New constructs a Discoverer. Page sizes outside [1, rpc.MaxPageSize] fall back to DefaultPageSize.
func New(lister SignatureLister, pageSize int, logger zerolog.Logger) *Discoverer {
	if pageSize <= 0 || pageSize > rpc.MaxPageSize {
		pageSize = DefaultPageSize
	}
	return &Discoverer{
		lister:   lister,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "discovery").Logger(),
	}
}

// Walk pages through address's signatures and hands every ref inside window to
// visit, exactly once. It stops at the first ref older than the cutoff or when
// history is exhausted. A page that cannot be listed aborts the walk with *PageError.
func (d *Discoverer) Walk(ctx context.Context, address string, window fees.Window, visit VisitFunc) (Stats, error) {
	var stats Stats
	seen := make(map[string]struct{})
	cutoff := window.Cutoff()
	cursor := ""

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := d.lister.ListSignatures(ctx, address, cursor, d.pageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			return stats, &PageError{Page: page, Cursor: cursor, Err: err}
		}
		stats.Pages++

		batch := make([]rpc.TransactionRef, 0, len(res.Refs))
		crossed := false
		for _, ref := range res.Refs {
			if _, dup := seen[ref.Signature]; dup {
				stats.Duplicates++
				continue
			}
			seen[ref.Signature] = struct{}{}

			if !ref.Timed() {
				stats.Untimed++
				continue
			}
			if !window.Contains(ref.BlockTime) {
				if ref.BlockTime.Before(cutoff) {
					crossed = true
					break
				}
				stats.Future++
				continue
			}
			batch = append(batch, ref)
		}

		d.logger.Debug().
			Int("page", page).
			Str("before", cursor).
			Int("listed", len(res.Refs)).
			Int("in_window", len(batch)).
			Bool("crossed_cutoff", crossed).
			Msg("discovery page scanned")

		if len(batch) > 0 {
			stats.Emitted += len(batch)
			if err := visit(ctx, batch); err != nil {
				return stats, err
			}
		}

		if crossed {
			stats.ReachedCutoff = true
			return stats, nil
		}
		if res.NextCursor == "" {
			return stats, nil
		}
		if res.NextCursor == cursor {
			return stats, &PageError{Page: page, Cursor: cursor, Err: errStuckCursor}
		}
		cursor = res.NextCursor
	}
}
