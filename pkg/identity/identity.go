package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

// SignatureHeader carries the personal_sign signature of the raw request body.
const SignatureHeader = "X-Faucet-Signature"

// Actions bind a signed body to the one operation it was signed for.
const (
	ActionRequest  = "request"
	ActionDeposit  = "deposit"
	ActionWithdraw = "withdraw"
	ActionRevoke   = "revoke"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrExpired          = errors.New("request has expired")
	ErrTooFarInFuture   = errors.New("request expiry is too far in the future")
	ErrReplayed         = errors.New("request has already been used")
)

// Verifier authenticates signed request bodies. The signer of a body is the caller
// identity; each body is accepted at most once before it expires.
type Verifier struct {
	maxAge time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen *ttlcache.Cache
}

type Option func(*Verifier)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier accepts bodies that expire within maxAge from now.
func NewVerifier(maxAge time.Duration, opts ...Option) (*Verifier, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("max request age must be positive, got %s", maxAge)
	}
	seen := ttlcache.NewCache()
	seen.SkipTTLExtensionOnHit(true)
	if err := seen.SetTTL(maxAge); err != nil {
		return nil, fmt.Errorf("failed to configure replay cache: %w", err)
	}
	v := &Verifier{maxAge: maxAge, now: time.Now, seen: seen}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify recovers the address that signed body and records the body as used.
// expiresAt is the unix time carried in the body.
func (v *Verifier) Verify(body []byte, signature string, expiresAt int64) (common.Address, error) {
	if signature == "" {
		return common.Address{}, ErrMissingSignature
	}
	now := v.now()
	expiry := time.Unix(expiresAt, 0)
	if !now.Before(expiry) {
		return common.Address{}, fmt.Errorf("%w: expired at %s", ErrExpired, expiry.UTC().Format(time.RFC3339))
	}
	if expiry.Sub(now) > v.maxAge {
		return common.Address{}, fmt.Errorf("%w: must expire within %s", ErrTooFarInFuture, v.maxAge)
	}

	signer, err := Recover(body, signature)
	if err != nil {
		return common.Address{}, err
	}

	key := signer.Hex() + crypto.Keccak256Hash(body).Hex()
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.seen.Get(key); err == nil {
		return common.Address{}, ErrReplayed
	} else if !errors.Is(err, ttlcache.ErrNotFound) {
		return common.Address{}, fmt.Errorf("failed to check replay cache: %w", err)
	}
	if err := v.seen.SetWithTTL(key, struct{}{}, expiry.Sub(now)+time.Second); err != nil {
		return common.Address{}, fmt.Errorf("failed to record request: %w", err)
	}
	return signer, nil
}

// Close stops the replay cache janitor.
func (v *Verifier) Close() {
	if err := v.seen.Close(); err != nil {
		logger.Warnf("[identity] failed to close replay cache: %v", err)
	}
}

// Recover returns the address whose key produced the personal_sign signature of body.
func Recover(body []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	// wallets produce v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces the personal_sign signature of body, as a wallet would.
func Sign(key *ecdsa.PrivateKey, body []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(body), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
