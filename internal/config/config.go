package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides, e.g. WPPBRIDGE_LISTEN.
const EnvPrefix = "WPPBRIDGE"

// Config represents the daemon configuration file (config.toml).
type Config struct {
	DataDir          string        `toml:"data_dir" envconfig:"DATA_DIR"`
	Listen           string        `toml:"listen" envconfig:"LISTEN"`
	LogLevel         string        `toml:"log_level" envconfig:"LOG_LEVEL"`
	MessageFooter    string        `toml:"message_footer" envconfig:"MESSAGE_FOOTER"`
	CORSOrigins      []string      `toml:"cors_origins" envconfig:"CORS_ORIGINS"`
	SnapshotInterval time.Duration `toml:"snapshot_interval" envconfig:"SNAPSHOT_INTERVAL"`
	ReconnectDelay   time.Duration `toml:"reconnect_delay" envconfig:"RECONNECT_DELAY"`
	ProfileNameDelay time.Duration `toml:"profile_name_delay" envconfig:"PROFILE_NAME_DELAY"`
	MessageRetention int           `toml:"message_retention" envconfig:"MESSAGE_RETENTION"`
	WebhookTimeout   time.Duration `toml:"webhook_timeout" envconfig:"WEBHOOK_TIMEOUT"`
	SendRate         float64       `toml:"send_rate" envconfig:"SEND_RATE"`
	SendBurst        int           `toml:"send_burst" envconfig:"SEND_BURST"`
	DeviceName       string        `toml:"device_name" envconfig:"DEVICE_NAME"`

	Auth AuthConfig `toml:"auth" envconfig:"AUTH"`
	Web  WebConfig  `toml:"web" envconfig:"WEB"`
}

// WebConfig controls static file serving.
type WebConfig struct {
	// PublicMediaDir, when set, is served under /media.
	PublicMediaDir string `toml:"public_media_dir" envconfig:"PUBLIC_MEDIA_DIR"`
}

// AuthConfig controls API-key protection of the HTTP surface.
// Authentication is enabled only when Enabled is set.
type AuthConfig struct {
	Enabled bool   `toml:"enabled" envconfig:"ENABLED"`
	APIKey  string `toml:"api_key" envconfig:"API_KEY"`
}

// ErrMissingAPIKey is returned by Validate when auth is enabled without a key.
var ErrMissingAPIKey = errors.New("auth.enabled is true but auth.api_key is empty")

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:          dataDir,
		Listen:           "127.0.0.1:3000",
		LogLevel:         "info",
		SnapshotInterval: 30 * time.Second,
		ReconnectDelay:   5 * time.Second,
		ProfileNameDelay: 3 * time.Second,
		MessageRetention: 100,
		WebhookTimeout:   10 * time.Second,
		SendRate:         5,
		SendBurst:        5,
		DeviceName:       "wppbridge",
	}
}

// DefaultDataDir returns ~/.wppbridge.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wppbridge")
}

// Load builds the effective configuration: defaults, then the TOML file at path
// (skipped when missing), then .env and WPPBRIDGE_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default(DefaultDataDir())
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load(".env")
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.MessageRetention <= 0 {
		return fmt.Errorf("message_retention must be positive, got %d", c.MessageRetention)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
