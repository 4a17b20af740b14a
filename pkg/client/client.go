package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zama-ai/token-faucet/pkg/identity"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

// DefaultRequestTTL is how long a signed body stays valid.
const DefaultRequestTTL = time.Minute

// Client calls the faucet API, signing mutating requests with key.
type Client struct {
	baseURL    string
	httpClient *http.Client
	key        *ecdsa.PrivateKey
	address    common.Address

	ttl     time.Duration
	now     func() time.Time
	backoff func(attempt int) time.Duration
}

type Option func(*Client)

// WithRequestTTL sets how far in the future signed bodies expire.
func WithRequestTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithClock overrides the clock used to compute expiries.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithBackoff overrides the delay before retry attempt n (n >= 1).
func WithBackoff(backoff func(attempt int) time.Duration) Option {
	return func(c *Client) {
		c.backoff = backoff
	}
}

// NewClient creates a new faucet client. key may be nil for read-only use.
func NewClient(baseURL string, key *ecdsa.PrivateKey, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		key: key,
		ttl: DefaultRequestTTL,
		now: time.Now,
		backoff: func(attempt int) time.Duration {
			// Exponential backoff
			return time.Duration(attempt*attempt) * time.Second
		},
	}
	if key != nil {
		c.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the identity the client signs as.
func (c *Client) Address() common.Address {
	return c.address
}

// APIError is a non-2xx answer of the faucet.
type APIError struct {
	StatusCode int
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("faucet returned %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// KindTransferPending reports a transfer that was sent but not confirmed. The call
// was applied and repeating it may move tokens twice.
const KindTransferPending = "TransferPending"

// Retryable reports whether the same call may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.Kind != KindTransferPending
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

type Asset struct {
	Symbol      string `json:"symbol"`
	Address     string `json:"address"`
	Decimals    uint8  `json:"decimals"`
	ClaimAmount string `json:"claimAmount"`
	Balance     string `json:"balance"`
}

type Eligibility struct {
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	Eligible    bool   `json:"eligible"`
	HasReceived bool   `json:"hasReceived"`
	WaitSeconds int64  `json:"waitSeconds"`
}

// ClaimResult represents the result of a claim
type ClaimResult struct {
	Caller   string        `json:"caller"`
	Asset    string        `json:"asset"`
	Amount   string        `json:"amount"`
	Time     time.Time     `json:"time"`
	Attempts int           `json:"-"`
	Duration time.Duration `json:"-"`
}

// VaultResult is the vault state after a deposit or withdrawal
type VaultResult struct {
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

type signedBody struct {
	Action    string `json:"action"`
	ExpiresAt int64  `json:"expiresAt"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount,omitempty"`
	Account   string `json:"account,omitempty"`
}

// Assets lists the faucet assets with their vault balances.
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	if err := c.get(ctx, "/api/v1/assets", &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// Eligibility reports whether account may claim asset now.
func (c *Client) Eligibility(ctx context.Context, account common.Address, asset string) (*Eligibility, error) {
	var resp Eligibility
	path := fmt.Sprintf("/api/v1/eligibility/%s/%s", account.Hex(), url.PathEscape(asset))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestTokens claims asset for the client's own address.
func (c *Client) RequestTokens(ctx context.Context, asset string) (*ClaimResult, error) {
	startTime := time.Now()
	var resp ClaimResult
	if err := c.post(ctx, "/api/v1/request", signedBody{Action: identity.ActionRequest, Asset: asset}, &resp); err != nil {
		return nil, err
	}
	resp.Attempts = 1
	resp.Duration = time.Since(startTime)
	return &resp, nil
}

// RequestTokensWithRetry claims asset, retrying failures that may be transient.
// Every attempt is signed afresh.
func (c *Client) RequestTokensWithRetry(ctx context.Context, asset string, maxRetries int) (*ClaimResult, error) {
	var lastErr error
	startTime := time.Now()
	prefix := fmt.Sprintf("[faucet %s]", asset)

	if maxRetries < 0 {
		maxRetries = 0
	}
	// Total attempts = 1 initial + maxRetries retries
	totalAttempts := maxRetries + 1
	for attempt := 0; attempt < totalAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			logger.Warnf("%s Retrying claim for %s (attempt %d/%d) after %v", prefix, c.address.Hex(), attempt+1, totalAttempts, backoff)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.RequestTokens(ctx, asset)
		if err == nil {
			result.Attempts = attempt + 1
			result.Duration = time.Since(startTime)
			logger.Infof("%s Claimed %s for %s in %v", prefix, result.Amount, result.Caller, result.Duration)
			return result, nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		logger.Warnf("%s Claim attempt %d failed for %s: %v", prefix, attempt+1, c.address.Hex(), err)
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", totalAttempts, lastErr)
}

// Deposit moves amount (display units) from the operator into the vault.
func (c *Client) Deposit(ctx context.Context, asset, amount string) (*VaultResult, error) {
	var resp VaultResult
	if err := c.post(ctx, "/api/v1/admin/deposit", signedBody{Action: identity.ActionDeposit, Asset: asset, Amount: amount}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Withdraw moves amount (display units) from the vault back to the operator.
func (c *Client) Withdraw(ctx context.Context, asset, amount string) (*VaultResult, error) {
	var resp VaultResult
	if err := c.post(ctx, "/api/v1/admin/withdraw", signedBody{Action: identity.ActionWithdraw, Asset: asset, Amount: amount}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveFromWhitelist lets account claim asset again.
func (c *Client) RemoveFromWhitelist(ctx context.Context, account common.Address, asset string) error {
	return c.post(ctx, "/api/v1/admin/whitelist/remove", signedBody{Action: identity.ActionRevoke, Asset: asset, Account: account.Hex()}, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body signedBody, out any) error {
	if c.key == nil {
		return fmt.Errorf("client has no signing key")
	}
	body.ExpiresAt = c.now().Add(c.ttl).Unix()
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	signature, err := identity.Sign(c.key, jsonData)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.SignatureHeader, signature)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Kind == "" {
			apiErr.Kind = http.StatusText(resp.StatusCode)
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
