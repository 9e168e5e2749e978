package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment override, e.g. GPYT_LEDGER_BACKEND.
const EnvPrefix = "GPYT_"

// YouTube rejects resumable chunks that are not multiples of this size (except the last).
const ChunkQuantum = 256 * 1024

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials" envPrefix:"CREDENTIALS_"`
	Migration   MigrationConfig   `toml:"migration" envPrefix:"MIGRATION_"`
	Ledger      LedgerConfig      `toml:"ledger" envPrefix:"LEDGER_"`
	Database    DatabaseConfig    `toml:"database" envPrefix:"DATABASE_"`
	Storage     StorageConfig     `toml:"storage" envPrefix:"STORAGE_"`
	Events      EventsConfig      `toml:"events" envPrefix:"EVENTS_"`
	Tracing     TracingConfig     `toml:"tracing" envPrefix:"TRACING_"`
	HTTP        HTTPConfig        `toml:"http" envPrefix:"HTTP_"`
	Server      ServerConfig      `toml:"server" envPrefix:"SERVER_"`
	Log         LogConfig         `toml:"log" envPrefix:"LOG_"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Google GoogleConfig `toml:"google" envPrefix:"GOOGLE_"`
}

// GoogleConfig holds the OAuth client shared by Google Photos and YouTube.
type GoogleConfig struct {
	ClientID     string `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"REDIRECT_URI"`
	TokenFile    string `toml:"token_file" env:"TOKEN_FILE"`
}

// MigrationConfig tunes the migration driver and the upload session.
type MigrationConfig struct {
	ChunkSize  int      `toml:"chunk_size" env:"CHUNK_SIZE"`
	PageSize   int      `toml:"page_size" env:"PAGE_SIZE"`
	MaxRetries int           `toml:"max_retries" env:"MAX_RETRIES"` // negative retries forever
	MaxDelay   time.Duration `toml:"max_delay" env:"MAX_DELAY"`     // cap on one backoff sleep, zero is uncapped
	Workers    int           `toml:"workers" env:"WORKERS"`
	RateLimit  float64       `toml:"rate_limit" env:"RATE_LIMIT"`
	Visibility string        `toml:"visibility" env:"VISIBILITY"`
	Tags       []string      `toml:"tags" env:"TAGS" envSeparator:","`
}

// LedgerConfig selects where migration progress is persisted.
type LedgerConfig struct {
	Backend    string `toml:"backend" env:"BACKEND"` // sentinel, sqlite or s3
	AlbumTitle string `toml:"album_title" env:"ALBUM_TITLE"`
	ObjectKey  string `toml:"object_key" env:"OBJECT_KEY"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// StorageConfig points at an S3-compatible bucket.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint" env:"ENDPOINT"`
	Region    string `toml:"region" env:"REGION"`
	Bucket    string `toml:"bucket" env:"BUCKET"`
	AccessKey string `toml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `toml:"secret_key" env:"SECRET_KEY"`
	UseSSL    bool   `toml:"use_ssl" env:"USE_SSL"`
}

// EventsConfig configures the kafka publisher. No brokers disables publishing.
type EventsConfig struct {
	Brokers      []string      `toml:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string        `toml:"topic" env:"TOPIC"`
	Compression  string        `toml:"compression" env:"COMPRESSION"`
	BatchSize    int           `toml:"batch_size" env:"BATCH_SIZE"`
	BatchTimeout time.Duration `toml:"batch_timeout" env:"BATCH_TIMEOUT"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string  `toml:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `toml:"insecure" env:"INSECURE"`
	SampleRatio float64 `toml:"sample_ratio" env:"SAMPLE_RATIO"`
	ServiceName string  `toml:"service_name" env:"SERVICE_NAME"`
}

// HTTPConfig contains outbound client settings.
type HTTPConfig struct {
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
}

// ServerConfig contains HTTP server settings for the OAuth callback.
type ServerConfig struct {
	Host string `toml:"host" env:"HOST"`
	Port int    `toml:"port" env:"PORT"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
	File  string `toml:"file" env:"FILE"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overlays GPYT_* environment variables onto the config. Unset variables leave fields untouched.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolveConfig loads the config at path when it exists, falls back to defaults otherwise, and applies
// environment overrides last.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if config, err = LoadConfig(path); err != nil {
				return nil, err
			}
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, config.Validate()
}

// Validate checks values the migration cannot run without.
func (c *Config) Validate() error {
	if c.Migration.ChunkSize <= 0 {
		return fmt.Errorf("%w: migration.chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Migration.PageSize <= 0 || c.Migration.PageSize > 100 {
		return fmt.Errorf("%w: migration.page_size must be between 1 and 100", ErrInvalidConfig)
	}
	if c.Migration.MaxDelay < 0 {
		return fmt.Errorf("%w: migration.max_delay cannot be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Ledger.Backend) {
	case "sentinel", "sqlite", "s3":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Ledger.Backend)
	}
	return nil
}

// EffectiveChunkSize rounds the configured chunk size down to a multiple of [ChunkQuantum].
func (m MigrationConfig) EffectiveChunkSize() int {
	if m.ChunkSize < ChunkQuantum {
		return ChunkQuantum
	}
	return m.ChunkSize - m.ChunkSize%ChunkQuantum
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
