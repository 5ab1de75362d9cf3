package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration loaded from environment
// variables. A .env file is honored when present.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Provider   ProviderConfig
	Settlement SettlementConfig
	Aggregator AggregatorConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"odds-engine"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	// WorkerID identifies this instance in locks and settlement logs.
	// Defaults to a random uuid when empty.
	WorkerID string `envconfig:"WORKER_ID" default:""`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8090"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// RedisConfig holds the shared cache connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DatabaseConfig holds the Postgres settings for bets and balances.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"oddroyal"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// DSN returns the Postgres connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// ProviderConfig holds upstream odds feed settings.
type ProviderConfig struct {
	BaseURL    string        `envconfig:"ODDS_API_BASE_URL" default:"https://api.the-odds-api.com/v4"`
	APIKey     string        `envconfig:"ODDS_API_KEY" default:""`
	Regions    string        `envconfig:"ODDS_API_REGIONS" default:"eu"`
	Markets    string        `envconfig:"ODDS_API_MARKETS" default:"h2h"`
	OddsFormat string        `envconfig:"ODDS_API_FORMAT" default:"decimal"`
	Timeout    time.Duration `envconfig:"ODDS_API_TIMEOUT" default:"10s"`
}

// SettlementConfig tunes the settlement engine.
type SettlementConfig struct {
	PollInterval   time.Duration `envconfig:"SETTLEMENT_POLL_INTERVAL" default:"30s"`
	LockTTL        time.Duration `envconfig:"SETTLEMENT_LOCK_TTL" default:"30s"`
	BatchLimit     int           `envconfig:"SETTLEMENT_BATCH_LIMIT" default:"100"`
	// VoidPolicy decides undecidable selections: "force-loss" settles
	// them as lost, "void-refund" voids them and refunds the stake.
	VoidPolicy       string        `envconfig:"SETTLEMENT_VOID_POLICY" default:"force-loss"`
	RetryBaseDelay   time.Duration `envconfig:"SETTLEMENT_RETRY_BASE" default:"15s"`
	RetryMaxDelay    time.Duration `envconfig:"SETTLEMENT_RETRY_MAX" default:"10m"`
	RetryMaxAttempts int           `envconfig:"SETTLEMENT_RETRY_ATTEMPTS" default:"8"`
	BreakerThreshold int           `envconfig:"SETTLEMENT_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"SETTLEMENT_BREAKER_COOLDOWN" default:"2m"`
}

// AggregatorConfig tunes the CDC aggregator.
type AggregatorConfig struct {
	// Sports is a comma-separated list of sport keys to poll.
	Sports           string        `envconfig:"SPORTS" default:"soccer_epl"`
	LiveInterval     time.Duration `envconfig:"AGG_LIVE_INTERVAL" default:"15s"`
	UpcomingInterval time.Duration `envconfig:"AGG_UPCOMING_INTERVAL" default:"2m"`
	EditedInterval   time.Duration `envconfig:"AGG_EDITED_INTERVAL" default:"30s"`
	LiveTTL          time.Duration `envconfig:"AGG_LIVE_TTL" default:"90s"`
	PrematchTTL      time.Duration `envconfig:"AGG_PREMATCH_TTL" default:"10m"`
	RefreshThreshold float64       `envconfig:"AGG_REFRESH_THRESHOLD" default:"0.2"`
	BatchWindow      time.Duration `envconfig:"AGG_BATCH_WINDOW" default:"1s"`
	BatchMaxCount    int           `envconfig:"AGG_BATCH_MAX_COUNT" default:"50"`
	// MaxMessageBytes is the transport's per-message size ceiling.
	MaxMessageBytes int `envconfig:"AGG_MAX_MESSAGE_BYTES" default:"65536"`
	ScoreDaysFrom   int `envconfig:"AGG_SCORE_DAYS_FROM" default:"1"`
}

// SportKeys splits the configured sports list.
func (a *AggregatorConfig) SportKeys() []string {
	parts := strings.Split(a.Sports, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// Load reads configuration from the environment, honoring a .env file
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
