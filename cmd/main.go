package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/zama-ai/token-faucet/pkg/collector"
	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/currency"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/identity"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/metrics"
	"github.com/zama-ai/token-faucet/pkg/scheduler"
	"github.com/zama-ai/token-faucet/pkg/store"
	"github.com/zama-ai/token-faucet/pkg/validation"
	"github.com/zama-ai/token-faucet/pkg/version"

	httpfiber "github.com/zama-ai/token-faucet/pkg/server/http"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath     = flag.String("config", "config.yaml", "path to the config file")
	showVersion = flag.Bool("version", false, "print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		versionInfo := version.GetVersion()
		versionJSON, _ := json.Marshal(versionInfo)
		fmt.Println(string(versionJSON))
		return
	}

	config, err := config.ReadConfig(*cfgPath)
	if err != nil {
		panic(fmt.Errorf("failed to read config: %v", err))
	}

	// init logger
	level, err := zapcore.ParseLevel(config.Global.LogLevel)
	if err != nil {
		panic(fmt.Errorf("failed to parse log level: %v", err))
	}
	err = logger.InitLogger(logger.WithLevel(level), logger.WithEncodeTime("timestamp", zapcore.ISO8601TimeEncoder))
	if err != nil {
		panic(fmt.Errorf("failed to init logger: %v", err))
	}
	if zl, ok := logger.GetLogger().(*logger.ZapLogger); ok {
		logger.InitSLogger(zl.Logger, &logger.OptSLogger{
			AttrFromCtx: []func(ctx context.Context) []slog.Attr{httpfiber.RequestAttrs},
			ZapLevel:    level,
		})
	}

	// Validate configuration before any network operations
	configValidator := validation.NewConfigValidator()
	if err := configValidator.ValidateConfig(config); err != nil {
		logger.Fatalf("Configuration validation failed: %v", err)
	}
	logger.Infof("Configuration validated successfully (version %s)", version.GetVersion())

	// Use a timeout to prevent startup hangs if the RPC endpoint is unresponsive
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	currencyRegistry := currency.NewRegistry()
	backend, err := newChainBackend(ctx, config, currencyRegistry)
	if err != nil {
		logger.Fatalf("Failed to prepare %s chain backend: %v", config.Chain.Backend, err)
	}
	defer backend.close()

	st, err := store.Open(store.Options{Type: config.Store.Type, Path: config.Store.Path})
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", config.Store.Type, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Errorf("failed to close store: %v", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(promRegistry)
	m.RecordInfo(version.GetVersion().Version)

	policy, err := faucet.ParsePolicy(config.Faucet.Policy.Mode, config.Faucet.Policy.Cooldown)
	if err != nil {
		logger.Fatalf("Invalid policy: %v", err)
	}
	scope, err := faucet.ParseScope(config.Faucet.Policy.Scope)
	if err != nil {
		logger.Fatalf("Invalid policy scope: %v", err)
	}

	f, err := faucet.New(faucet.Config{
		Operator: common.HexToAddress(config.Faucet.Operator),
		Custody:  backend.custody,
		Assets:   backend.assets,
		Policy:   policy,
		Scope:    scope,
	}, st,
		faucet.WithMetrics(m),
		faucet.WithEventSink(faucet.NewEventLog(config.Faucet.EventLogSize)))
	if err != nil {
		logger.Fatalf("Failed to create faucet: %v", err)
	}

	vaultCollector := collector.NewVaultCollector(f)
	if err := promRegistry.Register(vaultCollector); err != nil {
		logger.Fatalf("Failed to register vault collector: %v", err)
	}

	var reconciler *scheduler.Reconciler
	if config.ReconcileEnabled() {
		reconciler, err = scheduler.NewReconciler(config.Reconcile.Schedule, vaultCollector, m)
		if err != nil {
			logger.Fatalf("Failed to create reconciler: %v", err)
		}
		if err := reconciler.Start(); err != nil {
			logger.Fatalf("Failed to start reconciler: %v", err)
		}
	} else {
		logger.Infof("Vault reconciliation is disabled")
	}

	verifier, err := identity.NewVerifier(config.Faucet.Auth.MaxRequestAge)
	if err != nil {
		logger.Fatalf("Failed to create request verifier: %v", err)
	}
	defer verifier.Close()

	// Bootstrap Server
	server, err := httpfiber.NewServer(config, f, verifier,
		httpfiber.WithRegistry(promRegistry),
		httpfiber.WithReadinessCheck(func(ctx context.Context) error {
			for _, asset := range f.Assets() {
				if _, err := f.Balance(asset.Symbol); err != nil {
					return err
				}
			}
			return nil
		}))
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	signalChain := make(chan os.Signal, 1)
	signal.Notify(signalChain, os.Interrupt, syscall.SIGTERM)
	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("failed to run server: %v", err)
		}
	}()
	m.RecordUp()
	<-signalChain

	// Graceful shutdown
	logger.Infof("Shutting down...")

	// Stop server first so no request is cut off mid-transfer
	server.Stop()

	if reconciler != nil {
		logger.Infof("Stopping vault reconciler...")
		if err := reconciler.Stop(); err != nil {
			logger.Errorf("Failed to stop reconciler: %v", err)
		}
	}

	logger.Infof("Shutdown complete")
}
