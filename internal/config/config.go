package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	corecommon "github.com/core-coin/go-core/v2/common"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

type Config struct {
	Development bool
	// API configuration
	APIPort        int
	ServerURL      string
	RequestTimeout time.Duration
	// Storage configuration
	StorageBackend   string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	// Redis is optional and only used to de-duplicate webhook updates
	RedisURL       string
	UpdateDedupTTL time.Duration

	// Notification configuration
	TelegramBotToken      string
	TelegramWebhookSecret string

	// Blockchain configuration
	EVMRPCURL                string
	EVMNetworkID             int64
	StrollManagerAddress     string
	CoreRPCURL               string
	CoreNetworkID            int64
	CoreStrollManagerAddress string

	// Rules engine configuration
	RulesCheckInterval      time.Duration
	RulesStopOnFirstFailure bool
}

// WebhookPath is the inbound path Telegram posts updates to.
func (c *Config) WebhookPath() string {
	return "/webhook/" + c.TelegramWebhookSecret
}

// WebhookURL is the public URL registered with Telegram at startup.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.ServerURL, "/") + c.WebhookPath()
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:    getEnvAsBool("DEVELOPMENT", false),
		APIPort:        getEnvAsInt("API_PORT", 3000),
		ServerURL:      getEnv("SERVER_URL", ""),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

		StorageBackend:   getEnv("STORAGE_BACKEND", StoragePostgres),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "custos"),

		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGO_DB", "custos"),
		MongoTransactions: getEnvAsBool("MONGO_TRANSACTIONS", true),

		RedisURL:       getEnv("REDIS_URL", ""),
		UpdateDedupTTL: getEnvAsDuration("UPDATE_DEDUP_TTL", 24*time.Hour),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		EVMRPCURL:                getEnv("EVM_RPC_URL", ""),
		EVMNetworkID:             getEnvAsInt64("EVM_NETWORK_ID", 80001), // Polygon Mumbai
		StrollManagerAddress:     getEnv("STROLLMANAGER_ADDRESS", ""),
		CoreRPCURL:               getEnv("CORE_RPC_URL", ""),
		CoreNetworkID:            getEnvAsInt64("CORE_NETWORK_ID", 1), // Core mainnet
		CoreStrollManagerAddress: getEnv("CORE_STROLLMANAGER_ADDRESS", ""),

		RulesCheckInterval:      getEnvAsDuration("RULES_CHECK_INTERVAL", 0),
		RulesStopOnFirstFailure: getEnvAsBool("RULES_STOP_ON_FIRST_FAILURE", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set.
// It also fills derived defaults.
func (c *Config) Validate() error {
	if c.TelegramWebhookSecret == "" {
		c.TelegramWebhookSecret = c.TelegramBotToken
	}

	switch c.StorageBackend {
	case StoragePostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.TelegramBotToken != "" && c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required when TELEGRAM_BOT_TOKEN is set")
	}

	if c.EVMRPCURL != "" {
		if !common.IsHexAddress(c.StrollManagerAddress) {
			return fmt.Errorf("invalid STROLLMANAGER_ADDRESS format: %q", c.StrollManagerAddress)
		}
	}

	if c.CoreRPCURL != "" {
		// Set default network ID before validation (required for address validation)
		corecommon.DefaultNetworkID = corecommon.NetworkID(c.CoreNetworkID)
		if _, err := corecommon.HexToAddress(c.CoreStrollManagerAddress); err != nil {
			return fmt.Errorf("invalid CORE_STROLLMANAGER_ADDRESS format: %w", err)
		}
		if c.CoreNetworkID == c.EVMNetworkID && c.EVMRPCURL != "" {
			return fmt.Errorf("CORE_NETWORK_ID and EVM_NETWORK_ID must differ")
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.RulesCheckInterval < 0 {
		return fmt.Errorf("RULES_CHECK_INTERVAL must not be negative")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt64(name string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
