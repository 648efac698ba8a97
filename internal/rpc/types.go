package rpc

import (
	"context"
	"time"
)

// API is the request surface the fee pipeline needs from a Solana node.
type API interface {
	ListSignatures(ctx context.Context, address, before string, limit int) (SignaturePage, error)
	GetTransaction(ctx context.Context, signature string) (TxResult, error)
}

// TransactionRef identifies a confirmed transaction touching an address.
type TransactionRef struct {
	Signature string
	Slot      uint64
	// BlockTime is zero when the node did not report one.
	BlockTime time.Time
	Failed    bool
}

// Timed reports whether the ref carries a block time.
func (r TransactionRef) Timed() bool {
	return !r.BlockTime.IsZero()
}

// SignaturePage is one page of getSignaturesForAddress, newest first.
type SignaturePage struct {
	Refs []TransactionRef
	// NextCursor is empty when history is exhausted.
	NextCursor string
}

// ResultKind tags the outcome of a transaction lookup.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultNotFound
	ResultMalformed
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultNotFound:
		return "not_found"
	case ResultMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// TxResult is the decoded getTransaction response. Record is set only for ResultOK;
// Reason explains ResultMalformed.
type TxResult struct {
	Kind   ResultKind
	Record *TransactionRecord
	Reason string
}

// TransactionRecord holds the fee-relevant subset of a transaction.
type TransactionRecord struct {
	Signature    string
	Slot         uint64
	BlockTime    time.Time
	Fee          uint64
	Succeeded    bool
	ComputeUnits *uint64
	AccountKeys  []string
}

// FeePayer returns the account in the fee-payer slot, which Solana fixes as the
// first account key of the message.
func (r *TransactionRecord) FeePayer() string {
	if r == nil || len(r.AccountKeys) == 0 {
		return ""
	}
	return r.AccountKeys[0]
}
