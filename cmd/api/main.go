package main

import (
	"context"
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
	"github.com/communitypay/cc-ledger/internal/api"
	"github.com/communitypay/cc-ledger/internal/chaintx"
	"github.com/communitypay/cc-ledger/internal/config"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/ledger"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	migrate    = flag.Bool("migrate", false, "Run schema migration on startup")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting ledger API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if *migrate {
		if err := store.Migrate(db); err != nil {
			logger.FatalCtx(ctx, "Failed to migrate schema", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Schema migrated")
	}
	dataStore := store.NewPGStore(db)

	// Connect to the chain node
	chainGateway, err := gateway.NewEthereum(ctx, gateway.Config{
		WebSocketURL: cfg.Ethereum.WebSocketURL,
	}, adapter.NewEthClientDialer())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to ethereum node", zap.Error(err))
	}
	defer chainGateway.Close()

	// Wire notifications; the API runs fine without a broker
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

	srv := api.NewServer(api.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: api.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			APIKeys:   cfg.Auth.APIKeys,
		},
	}, api.NewHandler(ledgerService, tracker))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
