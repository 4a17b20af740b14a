package erc20

import (
	"context"
	"crypto/ecdsa"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/token"
)

// Backend is a JSON-RPC connection shared by the token clients of one chain.
type Backend struct {
	rpc            *rpc.Client
	eth            *ethclient.Client
	signer         *Signer
	receiptTimeout time.Duration
}

// Signer signs the custody account's transactions.
type Signer struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	address common.Address
}

// NewSigner parses a hex-encoded secp256k1 private key.
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		key:     key,
		chainID: big.NewInt(chainID),
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the account the signer sends from.
func (s *Signer) Address() common.Address {
	return s.address
}

// Dial connects to the chain configured in chain, with the custody signer when a
// private key is set.
func Dial(ctx context.Context, chain *config.Chain) (*Backend, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain configuration cannot be nil")
	}
	if chain.HttpAddr == "" {
		return nil, fmt.Errorf("chain is missing httpAddr")
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: strings.EqualFold(chain.HttpSSLVerify, "false")}
	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}

	opts := []rpc.ClientOption{rpc.WithHTTPClient(httpClient)}
	if chain.Authorization != nil && chain.Authorization.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(chain.Authorization.Username + ":" + chain.Authorization.Password))
		opts = append(opts, rpc.WithHTTPAuth(func(h http.Header) error {
			h.Set("Authorization", fmt.Sprintf("Basic %s", creds))
			return nil
		}))
	}

	var signer *Signer
	if chain.PrivateKey != "" {
		var err error
		if signer, err = NewSigner(chain.PrivateKey, chain.ChainID); err != nil {
			return nil, err
		}
	}

	rpcClient, err := rpc.DialOptions(ctx, chain.HttpAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc endpoint %s: %w", chain.HttpAddr, err)
	}
	return NewBackend(rpcClient, signer, chain.ReceiptTimeout), nil
}

// NewBackend wraps an established RPC client. signer may be nil for a read-only backend.
func NewBackend(rpcClient *rpc.Client, signer *Signer, receiptTimeout time.Duration) *Backend {
	if receiptTimeout <= 0 {
		receiptTimeout = config.DefaultReceiptTimeout
	}
	return &Backend{
		rpc:            rpcClient,
		eth:            ethclient.NewClient(rpcClient),
		signer:         signer,
		receiptTimeout: receiptTimeout,
	}
}

// Signer returns the custody signer, nil for a read-only backend.
func (b *Backend) Signer() *Signer {
	return b.signer
}

// Token returns a client for the ERC20 contract at address.
func (b *Backend) Token(address common.Address) *Client {
	return &Client{
		backend:  b,
		address:  address,
		contract: bind.NewBoundContract(address, erc20ABI, b.eth, b.eth, b.eth),
	}
}

// Close releases the underlying RPC resources.
func (b *Backend) Close() {
	if b == nil {
		return
	}
	if b.eth != nil {
		b.eth.Close()
	}
}

// Client encapsulates the interactions of the faucet with one ERC20 contract. Writes are
// sent from the signer's account, which is the faucet custody.
type Client struct {
	backend  *Backend
	address  common.Address
	contract *bind.BoundContract
}

var _ token.Token = (*Client)(nil)

// Metadata represents ERC20 token metadata.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Address returns the contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// BalanceOf returns the raw token balance for the provided address.
func (c *Client) BalanceOf(ctx context.Context, address common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf returned empty result")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Allowance returns how much spender may still pull from owner.
func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("allowance returned empty result")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Decimals fetches the token decimals.
func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to call decimals: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals returned empty result")
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Symbol fetches the token symbol.
func (c *Client) Symbol(ctx context.Context) (string, error) {
	out, err := c.call(ctx, "symbol")
	if err != nil {
		return "", fmt.Errorf("failed to call symbol: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("symbol returned empty result")
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// Name fetches the token name.
func (c *Client) Name(ctx context.Context) (string, error) {
	out, err := c.call(ctx, "name")
	if err != nil {
		return "", fmt.Errorf("failed to call name: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("name returned empty result")
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// Metadata fetches symbol, name, and decimals in a single helper.
// name() is optional in ERC20; the symbol stands in for it when the call fails.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	symbol, err := c.Symbol(ctx)
	if err != nil {
		return nil, fmt.Errorf("symbol is required: %w", err)
	}

	decimals, err := c.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("decimals is required: %w", err)
	}

	name, err := c.Name(ctx)
	if err != nil {
		name = symbol
	}

	return &Metadata{
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}, nil
}

// Transfer sends amount from the custody account to `to` and waits for the receipt.
func (c *Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return c.transact(ctx, "transfer", to, amount)
}

// TransferFrom pulls amount from `from` to `to` using the custody account's allowance.
// Missing allowance or balance is reported before any transaction is sent.
func (c *Client) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if c.backend.signer == nil {
		return errReadOnly
	}
	allowance, err := c.Allowance(ctx, from, c.backend.signer.address)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return token.ErrInsufficientAllowance
	}
	balance, err := c.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return token.ErrInsufficientBalance
	}
	return c.transact(ctx, "transferFrom", from, to, amount)
}

var errReadOnly = fmt.Errorf("erc20 client has no signer")

func (c *Client) transact(ctx context.Context, method string, params ...any) error {
	signer := c.backend.signer
	if signer == nil {
		return errReadOnly
	}
	opts, err := bind.NewKeyedTransactorWithChainID(signer.key, signer.chainID)
	if err != nil {
		return fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	logger.Debugf("[erc20 %s] sent %s tx %s", c.address.Hex(), method, tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, c.backend.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend.eth, tx)
	if err != nil {
		// the transaction is out; it may still be mined
		return fmt.Errorf("%w: waiting for %s tx %s: %v", token.ErrOutcomeUnknown, method, tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("%s tx %s reverted in block %s", method, tx.Hash().Hex(), receipt.BlockNumber)
	}
	logger.Debugf("[erc20 %s] %s tx %s mined in block %s", c.address.Hex(), method, tx.Hash().Hex(), receipt.BlockNumber)
	return nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) ([]any, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}
