package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Import   ImportConfig
	Webhook  WebhookConfig
	Stream   StreamConfig
}

// DatabaseConfig holds connection settings for Postgres.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the pgx keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL renders the postgres:// form used by the migration runner.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ImportConfig holds ingestion pipeline settings.
type ImportConfig struct {
	UploadDir   string
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Workers     int
}

// WebhookConfig holds notification delivery settings.
type WebhookConfig struct {
	DeliverTimeout time.Duration
	TestTimeout    time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
}

// StreamConfig holds live event stream settings.
type StreamConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
	SnapshotTTL  time.Duration
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "importflow",
			SSLMode: "disable",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Import: ImportConfig{
			UploadDir:   "./uploads",
			BatchSize:   1000,
			MaxAttempts: 3,
			RetryDelay:  60 * time.Second,
			Workers:     4,
		},
		Webhook: WebhookConfig{
			DeliverTimeout: 30 * time.Second,
			TestTimeout:    10 * time.Second,
			MaxRetries:     3,
			BackoffBase:    60 * time.Second,
		},
		Stream: StreamConfig{
			Timeout:      300 * time.Second,
			PollInterval: 100 * time.Millisecond,
			SnapshotTTL:  time.Hour,
		},
	}
}

// Load reads config.yaml from configPath, falling back to defaults and
// environment overrides (APP_DATABASE_HOST, APP_SERVER_ADDR, ...).
func Load(configPath string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("import.upload_dir")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("import.upload_dir") {
		cfg.Import.UploadDir = v.GetString("import.upload_dir")
	}
	if v.IsSet("import.batch_size") {
		cfg.Import.BatchSize = v.GetInt("import.batch_size")
	}
	if v.IsSet("import.max_attempts") {
		cfg.Import.MaxAttempts = v.GetInt("import.max_attempts")
	}
	if v.IsSet("import.retry_delay") {
		cfg.Import.RetryDelay = v.GetDuration("import.retry_delay")
	}
	if v.IsSet("import.workers") {
		cfg.Import.Workers = v.GetInt("import.workers")
	}
	if v.IsSet("webhook.deliver_timeout") {
		cfg.Webhook.DeliverTimeout = v.GetDuration("webhook.deliver_timeout")
	}
	if v.IsSet("webhook.test_timeout") {
		cfg.Webhook.TestTimeout = v.GetDuration("webhook.test_timeout")
	}
	if v.IsSet("webhook.max_retries") {
		cfg.Webhook.MaxRetries = v.GetInt("webhook.max_retries")
	}
	if v.IsSet("webhook.backoff_base") {
		cfg.Webhook.BackoffBase = v.GetDuration("webhook.backoff_base")
	}
	if v.IsSet("stream.timeout") {
		cfg.Stream.Timeout = v.GetDuration("stream.timeout")
	}
	if v.IsSet("stream.poll_interval") {
		cfg.Stream.PollInterval = v.GetDuration("stream.poll_interval")
	}
	if v.IsSet("stream.snapshot_ttl") {
		cfg.Stream.SnapshotTTL = v.GetDuration("stream.snapshot_ttl")
	}

	return cfg, nil
}
