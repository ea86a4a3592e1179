package chain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Option applies a configuration override to a Client.
type Option func(c *Client) error

// WithEndpoint replaces the provider URL from the registry entry. The
// string may carry authorization, "url,Bearer token" or
// "url,Basic user:password".
func WithEndpoint(provider string) Option {
	return func(c *Client) error {
		c.endpoint = HttpEndpoint(provider)
		return nil
	}
}

// WithTimeout overrides the per attempt RPC deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.New("rpc timeout must be positive")
		}
		c.rpcTimeout = timeout
		return nil
	}
}

// WithRetryPolicy overrides the attempt budget and the backoff bounds for
// transient failures.
func WithRetryPolicy(attempts int, base, max time.Duration) Option {
	return func(c *Client) error {
		if attempts < 1 {
			return errors.New("retry policy needs at least one attempt")
		}
		c.maxAttempts = attempts
		c.baseBackoff = base
		c.maxBackoff = max
		return nil
	}
}

// WithSigner configures the secp256k1 key used to sign transactions, given
// hex encoded.
func WithSigner(hexKey string) Option {
	return func(c *Client) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return errors.Wrap(err, "could not parse signing key")
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
		return nil
	}
}

// WithHeaders attaches extra HTTP headers to every RPC request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		c.headers = headers
		return nil
	}
}

// WithJWTSecretFile loads an HS256 secret from which a fresh bearer token
// is minted for every RPC attempt. Takes precedence over authorization
// carried in the endpoint string.
func WithJWTSecretFile(path string) Option {
	return func(c *Client) error {
		secret, err := LoadJWTSecret(path)
		if err != nil {
			return err
		}
		c.jwtSecret = secret
		return nil
	}
}

// WithReceiptPollInterval overrides how often WaitReceipt asks the provider
// whether a transaction has been mined.
func WithReceiptPollInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval <= 0 {
			return errors.New("receipt poll interval must be positive")
		}
		c.pollInterval = interval
		return nil
	}
}
