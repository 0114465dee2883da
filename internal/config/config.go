// Package config loads fitsync settings from defaults, an optional YAML file
// and FITSYNC_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Remote backends
const (
	RemoteHTTP     = "http"
	RemotePostgres = "postgres"
	RemoteMemory   = "memory"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Cache    CacheConfig    `yaml:"cache"`
	Backup   BackupConfig   `yaml:"backup"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains local API settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains local database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig selects and configures the remote backend.
type RemoteConfig struct {
	Kind        string   `yaml:"kind"`
	URL         string   `yaml:"url"`
	DSN         string   `yaml:"-"` // env-only, never in YAML
	APIKey      string   `yaml:"-"` // env-only, never in YAML
	CallTimeout Duration `yaml:"call_timeout"`
	MaxRetries  int      `yaml:"max_retries"`
}

// AuthConfig holds the signed-in user and the local API token.
type AuthConfig struct {
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"-"` // env-only, never in YAML
	LocalToken  string `yaml:"-"` // env-only, never in YAML
}

// SyncConfig contains sync orchestration settings.
type SyncConfig struct {
	Interval           Duration `yaml:"interval"`
	TriggerMinInterval Duration `yaml:"trigger_min_interval"`
	PullPageSize       int      `yaml:"pull_page_size"`
	// PullOverlap is how far before the last pulled change a pull re-reads.
	// Zero turns the overlap off.
	PullOverlap    Duration `yaml:"pull_overlap"`
	ConflictPolicy string   `yaml:"conflict_policy"`
}

// CacheConfig contains read-cache settings.
type CacheConfig struct {
	DefaultTTL Duration `yaml:"default_ttl"`
}

// BackupConfig configures off-device database backups.
// An empty Bucket keeps backups local.
type BackupConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"` // nil defaults to true
	AccessKey string   `yaml:"-"`       // env-only, never in YAML
	SecretKey string   `yaml:"-"`       // env-only, never in YAML
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings. An empty File logs to stdout.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("FITSYNC_CONFIG_PATH", "config/fitsync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8484,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/fitsync.db",
		},
		Remote: RemoteConfig{
			Kind:        RemoteHTTP,
			CallTimeout: Duration(5 * time.Second),
			MaxRetries:  3,
		},
		Sync: SyncConfig{
			Interval:           Duration(5 * time.Minute),
			TriggerMinInterval: Duration(10 * time.Second),
			PullPageSize:       500,
			PullOverlap:        Duration(30 * time.Second),
			ConflictPolicy:     "remote_wins",
		},
		Cache: CacheConfig{
			DefaultTTL: Duration(2 * time.Minute),
		},
		Backup: BackupConfig{
			Endpoint:  "s3.amazonaws.com",
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty, parseable env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("FITSYNC_PORT", &cfg.Server.Port)
	envDuration("FITSYNC_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("FITSYNC_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("FITSYNC_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("FITSYNC_DB_PATH", &cfg.Database.Path)

	// Remote
	envString("FITSYNC_REMOTE_KIND", &cfg.Remote.Kind)
	envString("FITSYNC_REMOTE_URL", &cfg.Remote.URL)
	envString("FITSYNC_REMOTE_DSN", &cfg.Remote.DSN)
	envString("FITSYNC_REMOTE_API_KEY", &cfg.Remote.APIKey)
	envDuration("FITSYNC_REMOTE_CALL_TIMEOUT", &cfg.Remote.CallTimeout)
	envInt("FITSYNC_REMOTE_MAX_RETRIES", &cfg.Remote.MaxRetries)

	// Auth
	envString("FITSYNC_USER_ID", &cfg.Auth.UserID)
	envString("FITSYNC_ACCESS_TOKEN", &cfg.Auth.AccessToken)
	envString("FITSYNC_LOCAL_TOKEN", &cfg.Auth.LocalToken)

	// Sync
	envDuration("FITSYNC_SYNC_INTERVAL", &cfg.Sync.Interval)
	envDuration("FITSYNC_TRIGGER_MIN_INTERVAL", &cfg.Sync.TriggerMinInterval)
	envInt("FITSYNC_PULL_PAGE_SIZE", &cfg.Sync.PullPageSize)
	envDuration("FITSYNC_PULL_OVERLAP", &cfg.Sync.PullOverlap)
	envString("FITSYNC_CONFLICT_POLICY", &cfg.Sync.ConflictPolicy)

	// Cache
	envDuration("FITSYNC_CACHE_TTL", &cfg.Cache.DefaultTTL)

	// Backup
	envString("FITSYNC_BACKUP_BUCKET", &cfg.Backup.Bucket)
	envString("FITSYNC_BACKUP_ENDPOINT", &cfg.Backup.Endpoint)
	envString("FITSYNC_BACKUP_REGION", &cfg.Backup.Region)
	envString("FITSYNC_BACKUP_ACCESS_KEY", &cfg.Backup.AccessKey)
	envString("FITSYNC_BACKUP_SECRET_KEY", &cfg.Backup.SecretKey)
	envDuration("FITSYNC_BACKUP_URL_EXPIRY", &cfg.Backup.URLExpiry)
	if v := os.Getenv("FITSYNC_BACKUP_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Backup.UseSSL = &b
		}
	}

	// Log
	envString("FITSYNC_LOG_LEVEL", &cfg.Log.Level)
	envString("FITSYNC_LOG_FORMAT", &cfg.Log.Format)
	envString("FITSYNC_LOG_FILE", &cfg.Log.File)
	envInt("FITSYNC_LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	envInt("FITSYNC_LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
}

// validate checks the configuration for values the engine cannot run with.
// In dev mode (FITSYNC_DEV_MODE=true), the local token is not required.
func (c *Config) validate() error {
	var errs []error

	switch c.Remote.Kind {
	case RemoteHTTP:
		if c.Remote.URL == "" {
			errs = append(errs, errors.New("remote.url is required for the http remote"))
		}
	case RemotePostgres:
		if c.Remote.DSN == "" {
			errs = append(errs, errors.New("FITSYNC_REMOTE_DSN is required for the postgres remote"))
		}
	case RemoteMemory:
	default:
		errs = append(errs, fmt.Errorf("remote.kind %q must be http, postgres or memory", c.Remote.Kind))
	}

	switch c.Sync.ConflictPolicy {
	case "remote_wins", "pending_wins":
	default:
		errs = append(errs, fmt.Errorf("sync.conflict_policy %q must be remote_wins or pending_wins", c.Sync.ConflictPolicy))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Sync.PullPageSize <= 0 {
		errs = append(errs, errors.New("sync.pull_page_size must be positive"))
	}
	if c.Sync.PullOverlap < 0 {
		errs = append(errs, errors.New("sync.pull_overlap must not be negative"))
	}
	if c.Remote.CallTimeout <= 0 {
		errs = append(errs, errors.New("remote.call_timeout must be positive"))
	}
	if c.Remote.MaxRetries < 0 {
		errs = append(errs, errors.New("remote.max_retries must not be negative"))
	}

	if c.Backup.Bucket != "" && c.Backup.URLExpiry <= 0 {
		errs = append(errs, errors.New("backup.url_expiry must be positive"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if os.Getenv("FITSYNC_DEV_MODE") != "true" && c.Auth.LocalToken == "" {
		errs = append(errs, errors.New("FITSYNC_LOCAL_TOKEN is required"))
	}

	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
