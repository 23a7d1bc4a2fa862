package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"lendingrisk/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	Subgraph      SubgraphConfig
	Analysis      AnalysisConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"lendingrisk"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"6m"` // covers an inline refresh
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"20s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig is optional; distribution history falls back to Postgres when disabled
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"lendingrisk"`
}

type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST" required:"true"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"2h"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"lendingrisk"`
}

type TelegramConfig struct {
	Enabled  bool    `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatIDs  []int64 `envconfig:"TELEGRAM_CHAT_IDS"`
	// Digest is sent when at-risk users or 10% drop liquidations reach this count
	AlertThreshold int `envconfig:"TELEGRAM_ALERT_THRESHOLD" default:"1"`
}

type SubgraphConfig struct {
	APIKey     string        `envconfig:"SUBGRAPH_API_KEY" required:"true"`
	Timeout    time.Duration `envconfig:"SUBGRAPH_TIMEOUT" default:"60s"`
	RateLimit  float64       `envconfig:"SUBGRAPH_RATE_LIMIT" default:"5"` // requests per second
	PageSize   int           `envconfig:"SUBGRAPH_PAGE_SIZE" default:"1000"`
	MaxRecords int           `envconfig:"SUBGRAPH_MAX_RECORDS" default:"5000"`

	// EventLookback is how far back each event ingestion pass re-reads
	EventLookback time.Duration `envconfig:"SUBGRAPH_EVENT_LOOKBACK" default:"2h"`
}

type AnalysisConfig struct {
	Chains           []string      `envconfig:"ANALYSIS_CHAINS" default:"ethereum,base"`
	ReferenceSymbols []string      `envconfig:"ANALYSIS_REFERENCE_SYMBOLS" default:"WETH"`
	Timeout          time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"5m"`
	LockTTL          time.Duration `envconfig:"ANALYSIS_LOCK_TTL" default:"10m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	HealthFactorInterval    time.Duration `envconfig:"WORKER_HEALTH_FACTOR_INTERVAL" default:"1h"`
	HealthFactorEnabled     bool          `envconfig:"WORKER_HEALTH_FACTOR_ENABLED" default:"true"`
	ReserveSnapshotInterval time.Duration `envconfig:"WORKER_RESERVE_SNAPSHOT_INTERVAL" default:"1h"`
	ReserveSnapshotEnabled  bool          `envconfig:"WORKER_RESERVE_SNAPSHOT_ENABLED" default:"true"`
	ProtocolEventInterval   time.Duration `envconfig:"WORKER_PROTOCOL_EVENT_INTERVAL" default:"1h"`
	ProtocolEventEnabled    bool          `envconfig:"WORKER_PROTOCOL_EVENT_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if len(c.Analysis.Chains) == 0 {
		return errors.NewValidationError("ANALYSIS_CHAINS", "at least one chain required", c.Analysis.Chains)
	}
	if c.Subgraph.PageSize <= 0 || c.Subgraph.PageSize > 1000 {
		return errors.NewValidationError("SUBGRAPH_PAGE_SIZE", "must be in [1,1000]", c.Subgraph.PageSize)
	}
	if c.Subgraph.EventLookback < c.Workers.ProtocolEventInterval {
		return errors.NewValidationError("SUBGRAPH_EVENT_LOOKBACK", "must cover WORKER_PROTOCOL_EVENT_INTERVAL", c.Subgraph.EventLookback.String())
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.NewValidationError("TELEGRAM_BOT_TOKEN", "required when telegram is enabled", "")
	}
	if c.ErrorTracking.Enabled && c.ErrorTracking.Provider == "sentry" && c.ErrorTracking.SentryDSN == "" {
		c.ErrorTracking.Enabled = false
	}
	return nil
}
