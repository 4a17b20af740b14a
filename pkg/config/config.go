package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/zama-ai/token-faucet/pkg/currency"
	"gopkg.in/yaml.v2"
)

const (
	BackendMemory = "memory"
	BackendEVM    = "evm"

	StoreMemory = "memory"
	StorePebble = "pebble"

	DefaultListenAddr        = ":8080"
	DefaultLogLevel          = "info"
	DefaultStorePath         = "data/faucet"
	DefaultReconcileSchedule = "@every 5m"
	DefaultMaxRequestAge     = 5 * time.Minute
	DefaultReceiptTimeout    = 2 * time.Minute
)

type Schema struct {
	Global    Global     `yaml:"global"`
	Faucet    Faucet     `yaml:"faucet"`
	Chain     Chain      `yaml:"chain"`
	Store     Store      `yaml:"store"`
	Reconcile *Reconcile `yaml:"reconcile"`
}

type Global struct {
	Environment string `yaml:"environment"`
	ListenAddr  string `yaml:"listenAddr"`
	LogLevel    string `yaml:"logLevel"`
}

type Faucet struct {
	Operator    string `yaml:"operator"`
	OperatorEnv string `yaml:"operatorEnv"`
	Policy      Policy `yaml:"policy"`
	Auth        Auth   `yaml:"auth"`
	// EventLogSize is the number of recent events served by the events endpoint
	EventLogSize int      `yaml:"eventLogSize"`
	Assets       []*Asset `yaml:"assets"`
}

type Policy struct {
	// Mode is "oneshot" (default) or "cooldown"
	Mode     string        `yaml:"mode"`
	Cooldown time.Duration `yaml:"cooldown"`
	// Scope is "asset" (default) or "global"
	Scope string `yaml:"scope"`
}

type Auth struct {
	// MaxRequestAge bounds how far in the future a signed request may expire
	MaxRequestAge time.Duration `yaml:"maxRequestAge"`
}

type Asset struct {
	Symbol          string          `yaml:"symbol"`
	ContractAddress string          `yaml:"contractAddress"`
	Decimals        *uint8          `yaml:"decimals"`
	ClaimAmount     currency.Amount `yaml:"claimAmount"`
	// AutoUnitDiscovery reads symbol and decimals from the contract on startup
	AutoUnitDiscovery bool `yaml:"autoUnitDiscovery"`
}

type Chain struct {
	Backend        string         `yaml:"backend"`
	HttpAddr       string         `yaml:"httpAddr"`
	HttpAddrEnv    string         `yaml:"httpAddrEnv"`
	ChainID        int64          `yaml:"chainId"`
	PrivateKey     string         `yaml:"-"`
	PrivateKeyEnv  string         `yaml:"privateKeyEnv"`
	Custody        string         `yaml:"custodyAddress"`
	ReceiptTimeout time.Duration  `yaml:"receiptTimeout"`
	HttpSSLVerify  string         `yaml:"httpSSLVerify"`
	Authorization  *Authorization `yaml:"authorization"`
	// Seed funds accounts of the memory backend at startup
	Seed []*Seed `yaml:"seed"`
}

type Authorization struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Seed struct {
	Account   string          `yaml:"account"`
	Asset     string          `yaml:"asset"`
	Balance   currency.Amount `yaml:"balance"`
	Allowance currency.Amount `yaml:"allowance"`
}

type Store struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type Reconcile struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // Cron expression, e.g. "0 */5 * * * *" or "@every 5m"
}

func (s *Schema) Normalize() error {
	if s.Global.ListenAddr == "" {
		s.Global.ListenAddr = DefaultListenAddr
	}
	if s.Global.LogLevel == "" {
		s.Global.LogLevel = DefaultLogLevel
	}
	if err := s.Faucet.Normalize(); err != nil {
		return fmt.Errorf("failed to normalize faucet config: %w", err)
	}
	if err := s.Chain.Normalize(); err != nil {
		return fmt.Errorf("failed to normalize chain config: %w", err)
	}
	if s.Store.Type == "" {
		s.Store.Type = StorePebble
		if s.Chain.Backend == BackendMemory {
			// a memory chain forgets its balances on restart, so must the vault
			s.Store.Type = StoreMemory
		}
	}
	if s.Store.Path == "" {
		s.Store.Path = DefaultStorePath
	}
	if s.Reconcile != nil && s.Reconcile.Schedule == "" {
		s.Reconcile.Schedule = DefaultReconcileSchedule
	}
	return nil
}

func (f *Faucet) Normalize() error {
	if f.OperatorEnv != "" {
		if envValue := os.Getenv(f.OperatorEnv); envValue != "" {
			f.Operator = envValue
		}
	}
	f.Policy.Mode = strings.ToLower(strings.TrimSpace(f.Policy.Mode))
	f.Policy.Scope = strings.ToLower(strings.TrimSpace(f.Policy.Scope))
	if f.Auth.MaxRequestAge == 0 {
		f.Auth.MaxRequestAge = DefaultMaxRequestAge
	}
	for _, asset := range f.Assets {
		asset.Symbol = strings.TrimSpace(asset.Symbol)
	}
	return nil
}

func (c *Chain) Normalize() error {
	if c.Backend == "" {
		c.Backend = BackendEVM
	}
	c.Backend = strings.ToLower(c.Backend)
	if c.HttpAddrEnv != "" {
		if envValue := os.Getenv(c.HttpAddrEnv); envValue != "" {
			c.HttpAddr = envValue
		}
	}
	if c.PrivateKeyEnv != "" {
		c.PrivateKey = os.Getenv(c.PrivateKeyEnv)
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = DefaultReceiptTimeout
	}
	return nil
}

// ReconcileEnabled reports whether the periodic vault reconciliation should run.
func (s *Schema) ReconcileEnabled() bool {
	return s.Reconcile != nil && s.Reconcile.Enabled
}

// ReadConfig reads and normalizes the YAML configuration at path.
func ReadConfig(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return ReadConfigWithError(f)
}

func ReadConfigWithError(r io.Reader) (*Schema, error) {
	config := &Schema{}
	decoder := yaml.NewDecoder(r)
	decoder.SetStrict(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	return config, nil
}
