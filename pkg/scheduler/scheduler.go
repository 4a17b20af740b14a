package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zama-ai/token-faucet/pkg/collector"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/metrics"
)

// BalanceChecker reads the vault and custody balances of every asset
type BalanceChecker interface {
	CollectBalances(ctx context.Context) []*collector.BaseResult
}

// ReconcileEvent is the outcome of reconciling one asset
type ReconcileEvent struct {
	Asset     string
	Vault     *big.Int
	Custody   *big.Int
	Drift     *big.Int
	Healthy   bool
	Timestamp time.Time
}

// Reconciler periodically compares the vault balance of each asset with the tokens the
// custody account actually holds, and reports any drift.
type Reconciler struct {
	schedule string
	checker  BalanceChecker
	metrics  metrics.Metricer
	cron     *cron.Cron

	running  bool
	lastRun  []*ReconcileEvent
	mutex    sync.RWMutex
	runMutex sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewReconciler creates a reconciler running on the given cron schedule. Schedules
// use the seconds-first cron format or descriptors such as "@every 5m".
func NewReconciler(schedule string, checker BalanceChecker, m metrics.Metricer) (*Reconciler, error) {
	if checker == nil {
		return nil, fmt.Errorf("balance checker cannot be nil")
	}
	if schedule == "" {
		return nil, fmt.Errorf("reconcile schedule cannot be empty")
	}
	if m == nil {
		m = metrics.NoopMetrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		schedule: schedule,
		checker:  checker,
		metrics:  m,
		cron:     cron.New(cron.WithSeconds()),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// logPrefix returns a consistent log prefix for the asset
func logPrefix(asset string) string {
	return fmt.Sprintf("[reconciler %s]", asset)
}

// Start schedules the reconciliation job
func (r *Reconciler) Start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return fmt.Errorf("reconciler is already running")
	}

	logger.Infof("[reconciler] starting with schedule: %s", r.schedule)

	_, err := r.cron.AddFunc(r.schedule, func() {
		r.RunOnce(r.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.cron.Start()
	r.running = true
	return nil
}

// Stop stops the schedule and waits for a running reconciliation to finish
func (r *Reconciler) Stop() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.running {
		return nil
	}

	logger.Infof("[reconciler] stopping...")

	r.cancel()
	ctx := r.cron.Stop()
	<-ctx.Done()

	r.running = false
	logger.Infof("[reconciler] stopped")
	return nil
}

// IsRunning returns whether the reconciler is currently scheduled
func (r *Reconciler) IsRunning() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.running
}

// GetNextRun returns the next scheduled run time
func (r *Reconciler) GetNextRun() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if !r.running {
		return time.Time{}
	}
	entries := r.cron.Entries()
	if len(entries) > 0 {
		return entries[0].Next
	}
	return time.Time{}
}

// LastRun returns the events of the most recent reconciliation
func (r *Reconciler) LastRun() []*ReconcileEvent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]*ReconcileEvent(nil), r.lastRun...)
}

// RunOnce reconciles every asset now. Runs never overlap.
func (r *Reconciler) RunOnce(ctx context.Context) []*ReconcileEvent {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()

	startTime := time.Now()
	results := r.checker.CollectBalances(ctx)
	events := make([]*ReconcileEvent, 0, len(results))

	drifting, errors := 0, 0
	for _, result := range results {
		event := &ReconcileEvent{
			Asset:     result.Asset.Symbol,
			Timestamp: startTime,
		}
		events = append(events, event)
		prefix := logPrefix(result.Asset.Symbol)

		if result.Health <= 0 {
			errors++
			logger.Errorf("%s could not read balances", prefix)
			continue
		}

		event.Healthy = true
		event.Vault = result.Vault
		event.Custody = result.Custody
		event.Drift = result.Drift()
		r.metrics.RecordDrift(result.Asset.Symbol, result.DriftFloat())

		unit := result.Asset.Unit()
		switch event.Drift.Sign() {
		case 0:
			logger.Debugf("%s vault and custody agree at %s", prefix, unit.Format(result.Vault))
		case 1:
			drifting++
			logger.Warnf("%s custody holds %s more than the vault records (vault %s, custody %s)",
				prefix, unit.Format(event.Drift), unit.Format(result.Vault), unit.Format(result.Custody))
		default:
			drifting++
			logger.Errorf("%s vault records %s more than custody holds (vault %s, custody %s)",
				prefix, unit.Format(new(big.Int).Neg(event.Drift)), unit.Format(result.Vault), unit.Format(result.Custody))
		}
	}

	r.mutex.Lock()
	r.lastRun = events
	r.mutex.Unlock()

	logger.Infof("[reconciler] check completed in %v: %d assets, %d drifting, %d errors",
		time.Since(startTime), len(results), drifting, errors)
	return events
}
