package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/communitypay/cc-ledger/internal/adapter"
	"github.com/communitypay/cc-ledger/internal/chaintx"
	"github.com/communitypay/cc-ledger/internal/config"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/ledger"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/settlement"
	"github.com/communitypay/cc-ledger/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSettlerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "settler",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting settlement service")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	// The settler signs outgoing transfers, so the operator key is required
	if cfg.Ethereum.OperatorKey == "" {
		logger.FatalCtx(ctx, "ethereum.operator_key is required for the settler")
	}
	chainGateway, err := gateway.NewEthereum(ctx, gateway.Config{
		WebSocketURL: cfg.Ethereum.WebSocketURL,
		OperatorKey:  cfg.Ethereum.OperatorKey,
	}, adapter.NewEthClientDialer())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to ethereum node", zap.Error(err))
	}
	defer chainGateway.Close()

	// Wire notifications
	notifier := notify.NewNoop()
	if cfg.NATS.URL != "" {
		notifier, err = notify.NewJetStream(notify.Config{
			URL:            cfg.NATS.URL,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
	}
	defer notifier.Close()

	registry := participant.NewRegistry(config.Currencies(cfg.Currencies))
	resolver := participant.NewStoreResolver(dataStore, registry)
	ledgerService := ledger.New(dataStore, resolver, notifier)
	tracker := chaintx.New(dataStore, chainGateway, notifier, chaintx.Config{
		BlocksToConfirm:  cfg.Ledger.BlocksToConfirm,
		BlocksToFinalize: cfg.Ledger.BlocksToFinalize,
	})

	settler := settlement.New(dataStore, ledgerService, tracker, chainGateway, registry,
		adapter.NewClock(), settlement.Config{
			Interval:         cfg.Settlement.Interval,
			BatchSize:        cfg.Settlement.BatchSize,
			OperatorAddress:  cfg.Settlement.OperatorAddress,
			CustodyAddress:   cfg.Settlement.CustodyAddress,
			MaxSubmitRetries: cfg.Settlement.MaxSubmitRetries,
		})

	errCh := make(chan error, 1)
	go func() {
		if err := settler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "settler"))
		cancel()
	}

	logger.Info("Settler stopped")
}
