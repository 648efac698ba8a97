package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrRateLimited signals an explicit throttling response from the endpoint.
	ErrRateLimited = errors.New("rpc: rate limited")
	// ErrTransport signals a network or endpoint failure.
	ErrTransport = errors.New("rpc: transport failure")
	// ErrRejected signals a request the endpoint will never accept as sent.
	ErrRejected = errors.New("rpc: request rejected")
)

// JSON-RPC error codes some Solana providers use instead of HTTP 429.
const (
	codeRateLimited   = -32429
	codeLimitExceeded = -32005
)

// Standard JSON-RPC 2.0 codes that do not change on retry.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// classify maps errors from the JSON-RPC client onto ErrRateLimited, ErrRejected or ErrTransport.
// Context errors pass through untouched so callers can abort promptly.
func classify(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s returned %s", ErrRateLimited, method, httpErr.Status)
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusRequestTimeout:
			return fmt.Errorf("%w: %s returned %s", ErrRejected, method, httpErr.Status)
		}
		return fmt.Errorf("%w: %s returned %s", ErrTransport, method, httpErr.Status)
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeRateLimited, codeLimitExceeded:
			return fmt.Errorf("%w: %s: %s (code %d)", ErrRateLimited, method, rpcErr.Error(), rpcErr.ErrorCode())
		case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
			return fmt.Errorf("%w: %s: %s (code %d)", ErrRejected, method, rpcErr.Error(), rpcErr.ErrorCode())
		}
		return fmt.Errorf("%w: %s: %s (code %d)", ErrTransport, method, rpcErr.Error(), rpcErr.ErrorCode())
	}

	return fmt.Errorf("%w: %s: %v", ErrTransport, method, err)
}
