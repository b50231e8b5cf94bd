package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/communitypay/cc-ledger/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// EthereumConfig holds Ethereum node configuration
type EthereumConfig struct {
	WebSocketURL string `mapstructure:"websocket_url"`
	// OperatorKey signs outgoing settlement transfers; leave empty for
	// read-only services
	OperatorKey string `mapstructure:"operator_key"`
}

// CurrencyConfig declares one tracked token contract
type CurrencyConfig struct {
	Symbol        string `mapstructure:"symbol"`
	TokenAddress  string `mapstructure:"token_address"`
	CreationBlock uint64 `mapstructure:"creation_block"`
	Decimals      int    `mapstructure:"decimals"`
}

// LedgerConfig holds confirmation depth thresholds
type LedgerConfig struct {
	BlocksToConfirm  uint64 `mapstructure:"blocks_to_confirm"`
	BlocksToFinalize uint64 `mapstructure:"blocks_to_finalize"`
}

// SettlementConfig holds the settlement job configuration
type SettlementConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	OperatorAddress  string        `mapstructure:"operator_address"`
	CustodyAddress   string        `mapstructure:"custody_address"`
	MaxSubmitRetries uint64        `mapstructure:"max_submit_retries"`
}

// ReconcilerConfig holds the reconciliation loop configuration
type ReconcilerConfig struct {
	BackfillInterval   time.Duration `mapstructure:"backfill_interval"`
	BackfillWindow     uint64        `mapstructure:"backfill_window"`
	MaxResubscribeWait time.Duration `mapstructure:"max_resubscribe_wait"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	APIKeys   []string `mapstructure:"api_keys"`
}

// APIConfig holds configuration for the api service
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Auth       AuthConfig       `mapstructure:"auth"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Currencies []CurrencyConfig `mapstructure:"currencies"`
}

// ReconcilerServiceConfig holds configuration for the reconciler service
type ReconcilerServiceConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Currencies []CurrencyConfig `mapstructure:"currencies"`
}

// SettlerConfig holds configuration for the settler service
type SettlerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Currencies []CurrencyConfig `mapstructure:"currencies"`
}

// LoadAPIConfig loads configuration for the api service
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.idle_timeout", 60)
	setDatabaseDefaults(v)
	setLedgerDefaults(v)
	setNATSDefaults(v, "cc-ledger-api")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadReconcilerConfig loads configuration for the reconciler service
func LoadReconcilerConfig(configFile string, envPath string) (*ReconcilerServiceConfig, error) {
	v := configureViper("reconciler", configFile, envPath)

	setDatabaseDefaults(v)
	setNATSDefaults(v, "cc-ledger-reconciler")
	v.SetDefault("reconciler.backfill_interval", "1m")
	v.SetDefault("reconciler.backfill_window", 5000)
	v.SetDefault("reconciler.max_resubscribe_wait", "1m")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config ReconcilerServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadSettlerConfig loads configuration for the settler service
func LoadSettlerConfig(configFile string, envPath string) (*SettlerConfig, error) {
	v := configureViper("settler", configFile, envPath)

	setDatabaseDefaults(v)
	setLedgerDefaults(v)
	setNATSDefaults(v, "cc-ledger-settler")
	v.SetDefault("settlement.interval", "30s")
	v.SetDefault("settlement.batch_size", 100)
	v.SetDefault("settlement.max_submit_retries", 5)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config SettlerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Currencies converts configured currencies to their domain form
func Currencies(configs []CurrencyConfig) []domain.Currency {
	currencies := make([]domain.Currency, 0, len(configs))
	for _, c := range configs {
		currencies = append(currencies, domain.Currency{
			Symbol:        c.Symbol,
			TokenAddress:  c.TokenAddress,
			CreationBlock: c.CreationBlock,
			Decimals:      c.Decimals,
		})
	}
	return currencies
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setLedgerDefaults(v *viper.Viper) {
	v.SetDefault("ledger.blocks_to_confirm", 6)
	v.SetDefault("ledger.blocks_to_finalize", 64)
}

func setNATSDefaults(v *viper.Viper, connectionName string) {
	v.SetDefault("nats.subject_prefix", "ledger")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", connectionName)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("CC_LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// This is required for viper to map env vars to config struct fields when no
// config file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Ethereum
		"ethereum.websocket_url",
		"ethereum.operator_key",
		// Ledger
		"ledger.blocks_to_confirm",
		"ledger.blocks_to_finalize",
		// Settlement
		"settlement.interval",
		"settlement.batch_size",
		"settlement.operator_address",
		"settlement.custody_address",
		"settlement.max_submit_retries",
		// Reconciler
		"reconciler.backfill_interval",
		"reconciler.backfill_window",
		"reconciler.max_resubscribe_wait",
		// NATS
		"nats.url",
		"nats.subject_prefix",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_secret",
		"auth.api_keys",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
