package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitypay/cc-ledger/internal/config"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.LoadAPIConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.ReadTimeout)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, uint64(6), cfg.Ledger.BlocksToConfirm)
	assert.Equal(t, uint64(64), cfg.Ledger.BlocksToFinalize)
	assert.Equal(t, "ledger", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "cc-ledger-api", cfg.NATS.ConnectionName)
}

func TestLoadSettlerConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.LoadSettlerConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Settlement.Interval)
	assert.Equal(t, 100, cfg.Settlement.BatchSize)
	assert.Equal(t, uint64(5), cfg.Settlement.MaxSubmitRetries)
	assert.Equal(t, "cc-ledger-settler", cfg.NATS.ConnectionName)
}

func TestLoadReconcilerConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.LoadReconcilerConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Reconciler.BackfillInterval)
	assert.Equal(t, uint64(5000), cfg.Reconciler.BackfillWindow)
	assert.Equal(t, time.Minute, cfg.Reconciler.MaxResubscribeWait)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CC_LEDGER_DATABASE_HOST", "db.internal")
	t.Setenv("CC_LEDGER_SERVER_PORT", "9090")
	t.Setenv("CC_LEDGER_ETHEREUM_WEBSOCKET_URL", "wss://node.internal")
	t.Setenv("CC_LEDGER_AUTH_JWT_SECRET", "sekrit")

	cfg, err := config.LoadAPIConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "wss://node.internal", cfg.Ethereum.WebSocketURL)
	assert.Equal(t, "sekrit", cfg.Auth.JWTSecret)
}

func TestDatabaseDSN(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ledger",
		Password: "secret",
		DBName:   "cc_ledger",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=ledger password=secret dbname=cc_ledger sslmode=disable",
		db.DSN())
}

func TestCurrencies(t *testing.T) {
	currencies := config.Currencies([]config.CurrencyConfig{
		{Symbol: "CPAY", TokenAddress: "0x1111000000000000000000000000000000000011", CreationBlock: 100, Decimals: 18},
	})
	require.Len(t, currencies, 1)
	assert.Equal(t, "CPAY", currencies[0].Symbol)
	assert.Equal(t, uint64(100), currencies[0].CreationBlock)
	assert.Equal(t, 18, currencies[0].Decimals)
}
