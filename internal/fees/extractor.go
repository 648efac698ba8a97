package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"sol-fee-audit/internal/rpc"
)

// TransactionFetcher loads a single transaction.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (rpc.TxResult, error)
}

// Extractor turns transaction refs into fee entries for one wallet.
type Extractor struct {
	fetcher TransactionFetcher
	logger  zerolog.Logger
}

// NewExtractor constructs an extractor.
func NewExtractor(fetcher TransactionFetcher, logger zerolog.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "fee_extractor").Logger(),
	}
}

// Extract fetches ref and derives its fee. A record that cannot be fetched or
// parsed is skipped; only cancellation and rate-limit exhaustion are returned as errors.
func (e *Extractor) Extract(ctx context.Context, wallet string, ref rpc.TransactionRef) (Outcome, error) {
	res, err := e.fetcher.GetTransaction(ctx, ref.Signature)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if errors.Is(err, rpc.ErrRateLimited) {
			return Outcome{}, fmt.Errorf("fetch transaction %s: %w", ref.Signature, err)
		}
		return e.skip(ref, SkipFetchFailed, err.Error()), nil
	}

	switch res.Kind {
	case rpc.ResultNotFound:
		return e.skip(ref, SkipNotFound, "transaction not found"), nil
	case rpc.ResultMalformed:
		return e.skip(ref, SkipMalformed, res.Reason), nil
	case rpc.ResultOK:
	default:
		return e.skip(ref, SkipMalformed, fmt.Sprintf("unexpected result kind %s", res.Kind)), nil
	}
	if res.Record == nil {
		return e.skip(ref, SkipMalformed, "empty record"), nil
	}

	payer := res.Record.FeePayer()
	if payer != wallet {
		return Outcome{Kind: OutcomeNotPayer}, nil
	}
	if ref.Failed == res.Record.Succeeded {
		e.logger.Warn().
			Str("signature", ref.Signature).
			Bool("listed_failed", ref.Failed).
			Bool("succeeded", res.Record.Succeeded).
			Msg("transaction status differs from signature listing; using transaction meta")
	}

	return Outcome{
		Kind: OutcomeEntry,
		Entry: FeeEntry{
			Ref:          ref,
			Amount:       res.Record.Fee,
			Payer:        payer,
			Succeeded:    res.Record.Succeeded,
			ComputeUnits: res.Record.ComputeUnits,
		},
	}, nil
}

func (e *Extractor) skip(ref rpc.TransactionRef, reason SkipReason, detail string) Outcome {
	e.logger.Warn().
		Str("signature", ref.Signature).
		Str("reason", string(reason)).
		Str("detail", detail).
		Msg("transaction skipped")
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}
