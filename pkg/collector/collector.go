package collector

import (
	"context"
	"sync"
	"time"

	"github.com/carlmjohnson/flowmatic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/metrics"
)

const (
	DefaultMaxConcurrency = 10
	DefaultTimeout        = 10 * time.Second
)

// BaseCollector exports the vault and custody balances of every asset at scrape time
type BaseCollector struct {
	processor    IAssetCollector
	assets       []*faucet.Asset
	timeout      time.Duration
	vault        *prometheus.GaugeVec
	custody      *prometheus.GaugeVec
	health       *prometheus.GaugeVec
	collectMutex sync.Mutex
}

// CollectorOption defines functional options for BaseCollector
type CollectorOption func(*BaseCollector)

// WithCollectorTimeout sets the timeout for collection operations
func WithCollectorTimeout(timeout time.Duration) CollectorOption {
	return func(c *BaseCollector) {
		c.timeout = timeout
	}
}

// IAssetCollector reads the balances of a single asset
type IAssetCollector interface {
	CollectAssetBalance(ctx context.Context, asset *faucet.Asset) (*BaseResult, error)
}

func NewBaseCollector(assets []*faucet.Asset, processor IAssetCollector, opts ...CollectorOption) *BaseCollector {
	labels := []string{"asset", "address"}
	collector := &BaseCollector{
		processor: processor,
		assets:    assets,
		timeout:   DefaultTimeout,
		vault: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "vault_balance",
				Help:      "Balance recorded by the faucet vault, in display units",
			},
			labels,
		),
		custody: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "custody_balance",
				Help:      "On-chain token balance of the custody account, in display units",
			},
			labels,
		),
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "vault_health",
				Help:      "1 if the balances of the asset could be read",
			},
			labels,
		),
	}

	for _, opt := range opts {
		opt(collector)
	}

	return collector
}

// CollectBalances reads the balances of every asset concurrently. Assets whose balances
// could not be read are returned with zero health.
func (c *BaseCollector) CollectBalances(ctx context.Context) []*BaseResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resultsChan := make(chan *BaseResult, len(c.assets))

	err := flowmatic.Each(DefaultMaxConcurrency, c.assets, func(asset *faucet.Asset) error {
		logger.Debugf("collecting balances for asset: %s", asset)

		result, err := c.processor.CollectAssetBalance(ctx, asset)
		if err != nil {
			logger.Errorf("error collecting balances for asset %s: %v", asset, err)
			result = &BaseResult{Asset: asset, Health: 0}
		}

		resultsChan <- result
		return nil
	})

	if err != nil {
		logger.Errorf("error in collection process: %v", err)
	}

	close(resultsChan)
	results := make([]*BaseResult, 0, len(c.assets))
	for result := range resultsChan {
		results = append(results, result)
	}
	return results
}

// Implement prometheus.Collector interface
func (c *BaseCollector) Describe(ch chan<- *prometheus.Desc) {
	c.vault.Describe(ch)
	c.custody.Describe(ch)
	c.health.Describe(ch)
}

func (c *BaseCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectMutex.Lock()
	defer c.collectMutex.Unlock()
	logger.Debugf("collecting vault balances of %d assets", len(c.assets))

	c.vault.Reset()
	c.custody.Reset()
	c.health.Reset()

	for _, result := range c.CollectBalances(context.Background()) {
		labels := prometheus.Labels{
			"asset":   result.Asset.Symbol,
			"address": result.Asset.Address().Hex(),
		}

		c.health.With(labels).Set(result.Health)
		if result.Health > 0 {
			c.vault.With(labels).Set(result.VaultFloat())
			c.custody.With(labels).Set(result.CustodyFloat())
		}
	}

	c.vault.Collect(ch)
	c.custody.Collect(ch)
	c.health.Collect(ch)
}
