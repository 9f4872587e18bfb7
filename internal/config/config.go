package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int

	// Database configuration
	DatabaseDriver   string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	SQLitePath       string

	// Redis cache for processed events, optional
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Blockchain configuration
	BlockchainServiceURL string
	NetworkID            *big.Int
	OperatorPrivateKey   string
	ActivationAmount     *big.Int
	LedgerTimeout        time.Duration

	// Messaging configuration
	TelegramBotToken    string
	TelegramBotUsername string
	MessagingTimeout    time.Duration
	MessagesPerMinute   int

	// Claim tokens
	EncryptionKey    string
	ClaimTokenSecret string
	ClaimBaseURL     string
	ClaimTokenTTL    time.Duration

	// Quotas
	MaxWalletsPerUser int
	MaxWalletsPerDay  int
	RateLimitWindow   time.Duration

	// Ingestion
	PollInterval            time.Duration
	LookbackWindow          time.Duration
	FreshnessWindow         time.Duration
	ProcessedEventRetention time.Duration
	SecondMessageDelay      time.Duration

	// Campaigns
	EventTime            time.Time
	ReminderLeadDays     int
	CampaignCron         string
	CampaignBatchSize    int
	CampaignMessageDelay time.Duration
	CampaignBatchPause   time.Duration
	FundingCheckInterval time.Duration

	// SMTP configuration for operator alerts
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPSender    string
	OperatorEmail string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development: getEnvAsBool("DEVELOPMENT", false),
		APIPort:     getEnvAsInt("API_PORT", 6532),

		DatabaseDriver:   getEnv("DATABASE_DRIVER", DriverPostgres),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "donum"),
		SQLitePath:       getEnv("SQLITE_PATH", "donum.db"),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisTTL:      getEnvAsDuration("REDIS_TTL", 24*time.Hour),

		BlockchainServiceURL: getEnv("BLOCKCHAIN_SERVICE_URL", ""),
		NetworkID:            getEnvAsBigInt("NETWORK_ID", big.NewInt(1)), // Default to Mainnet ID
		OperatorPrivateKey:   getEnv("OPERATOR_PRIVATE_KEY", ""),
		ActivationAmount:     getEnvAsBigInt("ACTIVATION_AMOUNT", big.NewInt(1)),
		LedgerTimeout:        getEnvAsDuration("LEDGER_TIMEOUT", 30*time.Second),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotUsername: getEnv("TELEGRAM_BOT_USERNAME", ""),
		MessagingTimeout:    getEnvAsDuration("MESSAGING_TIMEOUT", 15*time.Second),
		MessagesPerMinute:   getEnvAsInt("MESSAGES_PER_MINUTE", 30),

		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		ClaimTokenSecret: getEnv("CLAIM_TOKEN_SECRET", ""),
		ClaimBaseURL:     getEnv("CLAIM_BASE_URL", ""),
		ClaimTokenTTL:    getEnvAsDuration("CLAIM_TOKEN_TTL", time.Hour),

		MaxWalletsPerUser: getEnvAsInt("MAX_WALLETS_PER_USER", 1),
		MaxWalletsPerDay:  getEnvAsInt("MAX_WALLETS_PER_DAY", 1000),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", 24*time.Hour),

		PollInterval:            getEnvAsDuration("POLL_INTERVAL", 30*time.Second),
		LookbackWindow:          getEnvAsDuration("LOOKBACK_WINDOW", 5*time.Minute),
		FreshnessWindow:         getEnvAsDuration("FRESHNESS_WINDOW", 10*time.Minute),
		ProcessedEventRetention: getEnvAsDuration("PROCESSED_EVENT_RETENTION", 7*24*time.Hour),
		SecondMessageDelay:      getEnvAsDuration("SECOND_MESSAGE_DELAY", 5*time.Minute),

		EventTime:            getEnvAsTime("EVENT_TIME", time.Time{}),
		ReminderLeadDays:     getEnvAsInt("REMINDER_LEAD_DAYS", 7),
		CampaignCron:         getEnv("CAMPAIGN_CRON", "0 10 * * *"),
		CampaignBatchSize:    getEnvAsInt("CAMPAIGN_BATCH_SIZE", 50),
		CampaignMessageDelay: getEnvAsDuration("CAMPAIGN_MESSAGE_DELAY", time.Second),
		CampaignBatchPause:   getEnvAsDuration("CAMPAIGN_BATCH_PAUSE", 30*time.Second),
		FundingCheckInterval: getEnvAsDuration("FUNDING_CHECK_INTERVAL", time.Hour),

		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPSender:    getEnv("SMTP_SENDER", ""),
		OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ClaimSecret returns the secret used to seal claim tokens.
// CLAIM_TOKEN_SECRET wins over ENCRYPTION_KEY.
func (c *Config) ClaimSecret() string {
	if c.ClaimTokenSecret != "" {
		return c.ClaimTokenSecret
	}
	return c.EncryptionKey
}

// LedgerConfigured reports whether on-chain account creation can be attempted.
func (c *Config) LedgerConfigured() bool {
	return c.BlockchainServiceURL != "" && c.OperatorPrivateKey != ""
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if len(c.ClaimSecret()) < 16 {
		return fmt.Errorf("CLAIM_TOKEN_SECRET or ENCRYPTION_KEY must be at least 16 characters")
	}

	if c.ClaimBaseURL == "" {
		return fmt.Errorf("CLAIM_BASE_URL is required")
	}
	u, err := url.Parse(c.ClaimBaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid CLAIM_BASE_URL: %q", c.ClaimBaseURL)
	}
	if u.Scheme != "https" && !c.Development {
		return fmt.Errorf("CLAIM_BASE_URL must use https")
	}

	if c.ClaimTokenTTL <= 0 {
		return fmt.Errorf("CLAIM_TOKEN_TTL must be positive")
	}
	if c.MaxWalletsPerUser <= 0 || c.MaxWalletsPerDay <= 0 {
		return fmt.Errorf("MAX_WALLETS_PER_USER and MAX_WALLETS_PER_DAY must be positive")
	}
	if c.MessagesPerMinute <= 0 {
		return fmt.Errorf("MESSAGES_PER_MINUTE must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.CampaignBatchSize <= 0 {
		return fmt.Errorf("CAMPAIGN_BATCH_SIZE must be positive")
	}
	if c.OperatorPrivateKey != "" && c.BlockchainServiceURL == "" {
		return fmt.Errorf("BLOCKCHAIN_SERVICE_URL is required when OPERATOR_PRIVATE_KEY is set")
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

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBigInt(name string, defaultValue *big.Int) *big.Int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, ok := new(big.Int).SetString(valueStr, 10); ok {
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

func getEnvAsTime(name string, defaultValue time.Time) time.Time {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.Parse(time.RFC3339, strings.TrimSpace(valueStr)); err == nil {
			return value.UTC()
		}
	}
	return defaultValue
}
