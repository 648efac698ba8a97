package rpc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// DefaultEndpoint is the public mainnet-beta RPC endpoint.
const DefaultEndpoint = "https://api.mainnet-beta.solana.com"

const publicKeyLength = 32

// ValidateAddress checks that s is a base58-encoded 32 byte public key.
func ValidateAddress(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("wallet address is empty")
	}
	decoded := base58.Decode(s)
	if len(decoded) == 0 {
		return fmt.Errorf("wallet address %q is not valid base58", s)
	}
	if len(decoded) != publicKeyLength {
		return fmt.Errorf("wallet address %q decodes to %d bytes, want %d", s, len(decoded), publicKeyLength)
	}
	return nil
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("rpc endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("rpc endpoint %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("rpc endpoint %q has no host", raw)
	}
	return nil
}
