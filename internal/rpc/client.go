package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// MaxPageSize is the largest limit getSignaturesForAddress accepts.
const MaxPageSize = 1000

// Options parameterise the Solana JSON-RPC client.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	Commitment string
	UserAgent  string
}

// Client issues individual Solana JSON-RPC requests. It knows nothing about
// wallets or windows and never retries.
type Client struct {
	opts   Options
	rpc    *gethrpc.Client
	logger zerolog.Logger
}

// NewClient builds a client for opts.Endpoint. No request is made until the first call.
func NewClient(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if err := ValidateEndpoint(opts.Endpoint); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Commitment == "" {
		opts.Commitment = "confirmed"
	}

	dialOpts := []gethrpc.ClientOption{
		gethrpc.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		dialOpts = append(dialOpts, gethrpc.WithHeader("User-Agent", ua))
	}

	client, err := gethrpc.DialOptions(ctx, opts.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}

	return &Client{
		opts:   opts,
		rpc:    client,
		logger: logger.With().Str("component", "rpc_client").Logger(),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
}

// ListSignatures returns up to limit signatures for address older than before
// (newest first). NextCursor is set only when the page came back full.
func (c *Client) ListSignatures(ctx context.Context, address, before string, limit int) (SignaturePage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	config := map[string]any{
		"limit":      limit,
		"commitment": c.opts.Commitment,
	}
	if before != "" {
		config["before"] = before
	}

	var result []signatureInfo
	err := c.rpc.CallContext(ctx, &result, "getSignaturesForAddress", address, config)
	if err != nil {
		return SignaturePage{}, classify(ctx, "getSignaturesForAddress", err)
	}

	page := SignaturePage{Refs: make([]TransactionRef, 0, len(result))}
	for _, item := range result {
		ref := TransactionRef{
			Signature: item.Signature,
			Slot:      item.Slot,
			Failed:    len(item.Err) > 0 && string(item.Err) != "null",
		}
		if item.BlockTime != nil {
			ref.BlockTime = time.Unix(*item.BlockTime, 0).UTC()
		}
		page.Refs = append(page.Refs, ref)
	}
	if len(result) == limit {
		page.NextCursor = result[len(result)-1].Signature
	}

	c.logger.Debug().
		Str("address", address).
		Str("before", before).
		Int("count", len(page.Refs)).
		Msg("listed signatures")
	return page, nil
}

// GetTransaction fetches a transaction and maps the loosely typed payload onto
// a TxResult. Only transport-level failures are returned as errors.
func (c *Client) GetTransaction(ctx context.Context, signature string) (TxResult, error) {
	config := map[string]any{
		"encoding":                       "json",
		"commitment":                     c.opts.Commitment,
		"maxSupportedTransactionVersion": 0,
	}

	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, "getTransaction", signature, config)
	if err != nil {
		if errors.Is(err, gethrpc.ErrNoResult) {
			return TxResult{Kind: ResultNotFound}, nil
		}
		return TxResult{}, classify(ctx, "getTransaction", err)
	}

	return decodeTransaction(signature, raw), nil
}

func decodeTransaction(signature string, raw json.RawMessage) TxResult {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return TxResult{Kind: ResultNotFound}
	}

	var payload transactionResult
	if err := json.Unmarshal(raw, &payload); err != nil {
		return TxResult{Kind: ResultMalformed, Reason: fmt.Sprintf("decode transaction: %v", err)}
	}
	if payload.Meta == nil {
		return TxResult{Kind: ResultMalformed, Reason: "transaction meta missing"}
	}
	if payload.Meta.Fee == nil {
		return TxResult{Kind: ResultMalformed, Reason: "transaction fee missing"}
	}
	if payload.Transaction == nil || len(payload.Transaction.Message.AccountKeys) == 0 {
		return TxResult{Kind: ResultMalformed, Reason: "transaction account keys missing"}
	}

	record := &TransactionRecord{
		Signature:    signature,
		Slot:         payload.Slot,
		Fee:          *payload.Meta.Fee,
		Succeeded:    len(payload.Meta.Err) == 0 || string(payload.Meta.Err) == "null",
		ComputeUnits: payload.Meta.ComputeUnitsConsumed,
		AccountKeys:  payload.Transaction.Message.AccountKeys,
	}
	if payload.BlockTime != nil {
		record.BlockTime = time.Unix(*payload.BlockTime, 0).UTC()
	}
	return TxResult{Kind: ResultOK, Record: record}
}

type signatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
	BlockTime *int64          `json:"blockTime"`
}

type transactionResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *transactionMeta `json:"meta"`
	Transaction *transactionBody `json:"transaction"`
}

type transactionMeta struct {
	Err                  json.RawMessage `json:"err"`
	Fee                  *uint64         `json:"fee"`
	ComputeUnitsConsumed *uint64         `json:"computeUnitsConsumed"`
}

type transactionBody struct {
	Signatures []string `json:"signatures"`
	Message    struct {
		AccountKeys []string `json:"accountKeys"`
	} `json:"message"`
}

var _ API = (*Client)(nil)
