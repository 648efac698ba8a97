package fees

import (
	"time"

	"sol-fee-audit/internal/rpc"
)

// LamportsPerSOL converts the smallest fee unit to SOL.
const LamportsPerSOL = 1_000_000_000

// FeeEntry is one fee paid by the analysed wallet. Amount is in lamports.
type FeeEntry struct {
	Ref          rpc.TransactionRef
	Amount       uint64
	Payer        string
	Succeeded    bool
	ComputeUnits *uint64
}

// BlockTime returns the entry's confirmation time.
func (e FeeEntry) BlockTime() time.Time {
	return e.Ref.BlockTime
}

// SkipReason explains why a transaction in scope produced no entry.
type SkipReason string

const (
	SkipNotFound    SkipReason = "not_found"
	SkipMalformed   SkipReason = "malformed"
	SkipFetchFailed SkipReason = "fetch_failed"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeEntry OutcomeKind = iota
	OutcomeNotPayer
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEntry:
		return "entry"
	case OutcomeNotPayer:
		return "not_payer"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the result of extracting one transaction. Entry is set for
// OutcomeEntry, Reason for OutcomeSkipped.
type Outcome struct {
	Kind   OutcomeKind
	Entry  FeeEntry
	Reason SkipReason
}
