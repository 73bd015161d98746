// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tokopulse/tokopulse/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Cache     CacheConfig     `json:"cache"`
	Server    ServerConfig    `json:"server"`
	Engine    EngineConfig    `json:"engine"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Platform  PlatformConfig  `json:"platform"`
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"`
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// EngineConfig controls retry, pacing, fan-out, and leasing of the rule
// execution engine.
type EngineConfig struct {
	MaxRetries         int           `json:"max_retries"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay"`
	MinActionDelay     time.Duration `json:"min_action_delay"`
	MaxActionDelay     time.Duration `json:"max_action_delay"`
	MaxConcurrentShops int           `json:"max_concurrent_shops"`
	LeaseTTL           time.Duration `json:"lease_ttl"`
	LeaseEnabled       bool          `json:"lease_enabled"`
	NotifyQueueSize    int           `json:"notify_queue_size"`
}

type SchedulerConfig struct {
	Enabled              bool          `json:"enabled"`
	PollInterval         time.Duration `json:"poll_interval"`
	AutoIntervalMinutes  int           `json:"auto_interval_minutes"`
	RuleBatchSize        int           `json:"rule_batch_size"`
	ExecutionLogLifetime time.Duration `json:"execution_log_lifetime"`
}

type PlatformConfig struct {
	APIDomain string        `json:"api_domain"`
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`
}

type TelegramConfig struct {
	BotToken  string        `json:"bot_token"`
	APIDomain string        `json:"api_domain"`
	Timeout   time.Duration `json:"timeout"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// LoadProductionConfig loads configuration from environment variables with production defaults
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "tokopulse"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "tokopulse"),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			MaxRetries:         getEnvInt("ENGINE_MAX_RETRIES", utils.DefaultMaxRetries),
			RetryBaseDelay:     getEnvDuration("ENGINE_RETRY_BASE_DELAY", utils.DefaultRetryBaseDelay),
			MinActionDelay:     getEnvDuration("ENGINE_MIN_ACTION_DELAY", utils.DefaultMinActionDelay),
			MaxActionDelay:     getEnvDuration("ENGINE_MAX_ACTION_DELAY", utils.DefaultMaxActionDelay),
			MaxConcurrentShops: getEnvInt("ENGINE_MAX_CONCURRENT_SHOPS", utils.DefaultMaxConcurrentShops),
			LeaseTTL:           getEnvDuration("ENGINE_LEASE_TTL", utils.DefaultLeaseTTL),
			LeaseEnabled:       getEnvBool("ENGINE_LEASE_ENABLED", true),
			NotifyQueueSize:    getEnvInt("ENGINE_NOTIFY_QUEUE_SIZE", 64),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getEnvBool("SCHEDULER_ENABLED", true),
			PollInterval:         getEnvDuration("SCHEDULER_POLL_INTERVAL", 1*time.Minute),
			AutoIntervalMinutes:  getEnvInt("SCHEDULER_AUTO_INTERVAL_MINUTES", 60),
			RuleBatchSize:        getEnvInt("SCHEDULER_RULE_BATCH_SIZE", 200),
			ExecutionLogLifetime: getEnvDuration("SCHEDULER_EXECUTION_LOG_LIFETIME", 90*24*time.Hour),
		},
		Platform: PlatformConfig{
			APIDomain: getEnvString("PLATFORM_API_DOMAIN", "https://ads.marketplace.example"),
			Timeout:   getEnvDuration("PLATFORM_TIMEOUT", 30*time.Second),
			UserAgent: getEnvString("PLATFORM_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64)"),
		},
		Telegram: TelegramConfig{
			BotToken:  getEnvString("TELEGRAM_BOT_TOKEN", ""),
			APIDomain: getEnvString("TELEGRAM_API_DOMAIN", "https://api.telegram.org"),
			Timeout:   getEnvDuration("TELEGRAM_TIMEOUT", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			FilePath:   getEnvString("LOG_FILE_PATH", "data/engine.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates that required configuration is present and consistent
func ValidateProductionConfig(cfg *ProductionConfig) error {
	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine max retries must be at least 1")
	}
	if cfg.Engine.MinActionDelay < 0 || cfg.Engine.MaxActionDelay < cfg.Engine.MinActionDelay {
		return fmt.Errorf("engine action delay window is invalid: min=%s max=%s",
			cfg.Engine.MinActionDelay, cfg.Engine.MaxActionDelay)
	}
	if cfg.Engine.MaxConcurrentShops < 1 {
		return fmt.Errorf("engine max concurrent shops must be at least 1")
	}
	if cfg.Scheduler.PollInterval < time.Second {
		return fmt.Errorf("scheduler poll interval must be at least 1s")
	}
	if cfg.Platform.APIDomain == "" {
		return fmt.Errorf("platform api domain is required")
	}
	if cfg.Telegram.BotToken == "" {
		// Notification dispatch degrades to a logged warning without a token;
		// rules with telegram_notification still execute their other actions.
		fmt.Fprintln(os.Stderr, "warning: TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}
	return nil
}
