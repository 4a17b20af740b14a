package scheduler

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zama-ai/token-faucet/pkg/collector"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/metrics"
	"github.com/zama-ai/token-faucet/pkg/store"
	"github.com/zama-ai/token-faucet/pkg/token"
)

func init() {
	_ = logger.InitLogger()
}

// mockBalanceChecker is a mock implementation of BalanceChecker for testing.
type mockBalanceChecker struct {
	collectFunc func(ctx context.Context) []*collector.BaseResult
	calls       atomic.Int32
}

func (m *mockBalanceChecker) CollectBalances(ctx context.Context) []*collector.BaseResult {
	m.calls.Add(1)
	if m.collectFunc != nil {
		return m.collectFunc(ctx)
	}
	return nil
}

// recordingMetrics keeps the last drift recorded per asset
type recordingMetrics struct {
	metrics.NoopMetricer
	mu    sync.Mutex
	drift map[string]float64
}

func (m *recordingMetrics) RecordDrift(asset string, drift float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drift == nil {
		m.drift = make(map[string]float64)
	}
	m.drift[asset] = drift
}

func testAsset(symbol string) *faucet.Asset {
	return &faucet.Asset{
		Symbol:      symbol,
		Decimals:    0,
		ClaimAmount: big.NewInt(1),
		Token:       token.NewMemory(common.HexToAddress("0xa1"), symbol, 0).As(common.HexToAddress("0xfa")),
	}
}

func result(asset *faucet.Asset, vault, custody int64) *collector.BaseResult {
	return &collector.BaseResult{
		Asset:   asset,
		Vault:   big.NewInt(vault),
		Custody: big.NewInt(custody),
		Health:  1,
	}
}

func TestNewReconcilerValidation(t *testing.T) {
	_, err := NewReconciler("@every 1m", nil, nil)
	assert.Error(t, err)

	_, err = NewReconciler("", &mockBalanceChecker{}, nil)
	assert.Error(t, err)

	r, err := NewReconciler("@every 1m", &mockBalanceChecker{}, nil)
	require.NoError(t, err)
	assert.False(t, r.IsRunning())
	assert.True(t, r.GetNextRun().IsZero())
}

func TestRunOnceReportsDrift(t *testing.T) {
	tk1, tk2, tk3 := testAsset("TK1"), testAsset("TK2"), testAsset("TK3")
	checker := &mockBalanceChecker{
		collectFunc: func(ctx context.Context) []*collector.BaseResult {
			return []*collector.BaseResult{
				result(tk1, 500, 500),
				result(tk2, 400, 450),
				result(tk3, 300, 200),
			}
		},
	}
	m := &recordingMetrics{}
	r, err := NewReconciler("@every 1m", checker, m)
	require.NoError(t, err)

	events := r.RunOnce(context.Background())
	require.Len(t, events, 3)

	assert.Equal(t, "TK1", events[0].Asset)
	assert.True(t, events[0].Healthy)
	assert.Zero(t, events[0].Drift.Sign())

	assert.Equal(t, int64(50), events[1].Drift.Int64(), "tokens sent straight to custody")
	assert.Equal(t, int64(-100), events[2].Drift.Int64(), "vault records more than custody holds")

	assert.Equal(t, map[string]float64{"TK1": 0, "TK2": 50, "TK3": -100}, m.drift)
	assert.Equal(t, events, r.LastRun())
}

func TestRunOnceSkipsUnhealthyAssets(t *testing.T) {
	tk1, tk2 := testAsset("TK1"), testAsset("TK2")
	checker := &mockBalanceChecker{
		collectFunc: func(ctx context.Context) []*collector.BaseResult {
			return []*collector.BaseResult{
				{Asset: tk1, Health: 0},
				result(tk2, 10, 10),
			}
		},
	}
	m := &recordingMetrics{}
	r, err := NewReconciler("@every 1m", checker, m)
	require.NoError(t, err)

	events := r.RunOnce(context.Background())
	require.Len(t, events, 2)
	assert.False(t, events[0].Healthy)
	assert.Nil(t, events[0].Drift)
	assert.True(t, events[1].Healthy)

	_, recorded := m.drift["TK1"]
	assert.False(t, recorded, "no drift is recorded without balances")
	assert.Contains(t, m.drift, "TK2")
}

func TestStartStop(t *testing.T) {
	checker := &mockBalanceChecker{}
	r, err := NewReconciler("@every 1h", checker, nil)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.False(t, r.GetNextRun().IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), r.GetNextRun(), time.Minute)

	assert.Error(t, r.Start(), "starting twice fails")

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())
	assert.True(t, r.GetNextRun().IsZero())
	assert.NoError(t, r.Stop(), "stopping twice is a no-op")
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	r, err := NewReconciler("not a schedule", &mockBalanceChecker{}, nil)
	require.NoError(t, err)

	assert.Error(t, r.Start())
	assert.False(t, r.IsRunning())
}

func TestScheduledRun(t *testing.T) {
	checker := &mockBalanceChecker{}
	r, err := NewReconciler("@every 1s", checker, nil)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return checker.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReconcileAgainstFaucet(t *testing.T) {
	operator := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	custody := common.HexToAddress("0x00000000000000000000000000000000000000fa")

	tk1 := token.NewMemory(common.HexToAddress("0xa1"), "TK1", 0)
	f, err := faucet.New(faucet.Config{
		Operator: operator,
		Custody:  custody,
		Assets: []*faucet.Asset{
			{Symbol: "TK1", Decimals: 0, ClaimAmount: big.NewInt(100), Token: tk1.As(custody)},
		},
	}, store.NewMemory())
	require.NoError(t, err)

	tk1.Mint(operator, big.NewInt(1000))
	tk1.Approve(operator, custody, big.NewInt(500))
	require.NoError(t, f.DepositTokens(context.Background(), operator, "TK1", big.NewInt(500)))

	// a direct transfer to custody bypasses the vault
	tk1.Mint(custody, big.NewInt(7))

	m := &recordingMetrics{}
	r, err := NewReconciler("@every 1m", collector.NewVaultCollector(f), m)
	require.NoError(t, err)

	events := r.RunOnce(context.Background())
	require.Len(t, events, 1)
	assert.True(t, events[0].Healthy)
	assert.Equal(t, int64(500), events[0].Vault.Int64())
	assert.Equal(t, int64(507), events[0].Custody.Int64())
	assert.Equal(t, int64(7), events[0].Drift.Int64())
	assert.Equal(t, float64(7), m.drift["TK1"])
}
