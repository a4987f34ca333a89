package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	LLM     LLMConfig     `yaml:"llm"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Turn    TurnConfig    `yaml:"turn"`
	Vocab   VocabConfig   `yaml:"vocab"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Catalog source kinds.
const (
	SourceFile   = "file"
	SourceSQLite = "sqlite"
	SourceS3     = "s3"
)

// CatalogConfig selects where products are loaded from.
type CatalogConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	DBPath string `yaml:"db_path"`
	Watch  bool   `yaml:"watch"`

	// RefreshInterval reloads the catalog on a timer. Zero disables it.
	RefreshInterval Duration `yaml:"refresh_interval"`

	S3 ObjectStoreConfig `yaml:"s3"`
}

// ObjectStoreConfig locates a catalog object in S3-compatible storage.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
}

// LLMConfig contains suggestion generator settings.
type LLMConfig struct {
	APIKey       string   `yaml:"-"` // env-only, never in YAML
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	Temperature  float64  `yaml:"temperature"`
	HistoryTurns int      `yaml:"history_turns"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// SessionConfig contains conversation session settings.
type SessionConfig struct {
	IdleTTL       Duration `yaml:"idle_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
	MaxHistory    int      `yaml:"max_history"`
}

// TurnConfig tunes turn processing.
type TurnConfig struct {
	PreviewLimit     int `yaml:"preview_limit"`
	ColorIntentTurns int `yaml:"color_intent_turns"`
}

// VocabConfig points at an optional mapping-table override.
type VocabConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfigPath is used when SHOPFILTER_CONFIG_PATH is unset.
const DefaultConfigPath = "config/shopfilter.yaml"

// Load loads configuration with precedence: defaults → YAML file → env vars.
// A missing file is not an error.
func Load() (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, getEnv("SHOPFILTER_CONFIG_PATH", DefaultConfigPath), false); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, path, true); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadCatalogConfig loads only the catalog and vocab sections for offline
// commands. Server-only settings such as API keys are neither required nor
// validated.
func LoadCatalogConfig() (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, getEnv("SHOPFILTER_CONFIG_PATH", DefaultConfigPath), false); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validateCatalog(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Catalog: CatalogConfig{
			Source: SourceFile,
			Path:   "data/catalog.json",
			DBPath: "data/catalog.db",
			S3: ObjectStoreConfig{
				Key: "catalog/current.json",
			},
		},
		LLM: LLMConfig{
			Model:        "gpt-4o-mini",
			Timeout:      Duration(20 * time.Second),
			Temperature:  0.2,
			HistoryTurns: 10,
		},
		Session: SessionConfig{
			IdleTTL:       Duration(30 * time.Minute),
			SweepInterval: Duration(1 * time.Minute),
			MaxHistory:    50,
		},
		Turn: TurnConfig{
			PreviewLimit:     12,
			ColorIntentTurns: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile decodes path into cfg. When required is false a missing file
// leaves the defaults in place.
func loadYAMLFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
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
// Only non-empty env vars override config values; malformed values are errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = Duration(d)
		}
	}

	num("SHOPFILTER_PORT", &cfg.Server.Port)
	dur("SHOPFILTER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SHOPFILTER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("SHOPFILTER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("SHOPFILTER_CATALOG_SOURCE", &cfg.Catalog.Source)
	str("SHOPFILTER_CATALOG_PATH", &cfg.Catalog.Path)
	str("SHOPFILTER_DB_PATH", &cfg.Catalog.DBPath)
	if v := os.Getenv("SHOPFILTER_CATALOG_WATCH"); v != "" {
		cfg.Catalog.Watch = v == "true" || v == "1"
	}
	dur("SHOPFILTER_CATALOG_REFRESH_INTERVAL", &cfg.Catalog.RefreshInterval)
	str("SHOPFILTER_S3_ENDPOINT", &cfg.Catalog.S3.Endpoint)
	str("SHOPFILTER_S3_BUCKET", &cfg.Catalog.S3.Bucket)
	str("SHOPFILTER_S3_KEY", &cfg.Catalog.S3.Key)
	str("SHOPFILTER_S3_REGION", &cfg.Catalog.S3.Region)
	str("SHOPFILTER_S3_ACCESS_KEY", &cfg.Catalog.S3.AccessKey)
	str("SHOPFILTER_S3_SECRET_KEY", &cfg.Catalog.S3.SecretKey)
	if v := os.Getenv("SHOPFILTER_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Catalog.S3.UseSSL = &useSSL
	}

	// OPENAI_API_KEY is industry convention
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	str("SHOPFILTER_LLM_MODEL", &cfg.LLM.Model)
	str("SHOPFILTER_LLM_BASE_URL", &cfg.LLM.BaseURL)
	dur("SHOPFILTER_LLM_TIMEOUT", &cfg.LLM.Timeout)
	if v := os.Getenv("SHOPFILTER_LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		} else {
			errs = append(errs, fmt.Errorf("SHOPFILTER_LLM_TEMPERATURE: invalid number %q", v))
		}
	}
	num("SHOPFILTER_LLM_HISTORY_TURNS", &cfg.LLM.HistoryTurns)

	str("SHOPFILTER_API_KEY", &cfg.Auth.APIKey)

	dur("SHOPFILTER_SESSION_IDLE_TTL", &cfg.Session.IdleTTL)
	dur("SHOPFILTER_SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval)

	num("SHOPFILTER_PREVIEW_LIMIT", &cfg.Turn.PreviewLimit)

	str("SHOPFILTER_VOCAB_PATH", &cfg.Vocab.Path)

	str("SHOPFILTER_LOG_LEVEL", &cfg.Log.Level)
	str("SHOPFILTER_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// DevMode reports whether SHOPFILTER_DEV_MODE=true.
func DevMode() bool {
	return os.Getenv("SHOPFILTER_DEV_MODE") == "true"
}

// validate checks value ranges, and that required keys are set unless in dev mode.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if c.Turn.PreviewLimit <= 0 {
		return errors.New("turn.preview_limit must be positive")
	}
	if c.Turn.ColorIntentTurns <= 0 {
		return errors.New("turn.color_intent_turns must be positive")
	}
	if c.LLM.HistoryTurns < 0 {
		return errors.New("llm.history_turns must not be negative")
	}
	if c.Session.IdleTTL > 0 && c.Session.SweepInterval <= 0 {
		return errors.New("session.sweep_interval must be positive when idle_ttl is set")
	}

	if DevMode() {
		return nil
	}
	if c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("SHOPFILTER_API_KEY is required")
	}
	return nil
}

// validateCatalog checks that the catalog source and its location agree.
func (c *Config) validateCatalog() error {
	switch c.Catalog.Source {
	case SourceFile:
		if strings.TrimSpace(c.Catalog.Path) == "" {
			return errors.New("catalog.path is required for the file source")
		}
	case SourceSQLite:
		if strings.TrimSpace(c.Catalog.DBPath) == "" {
			return errors.New("catalog.db_path is required for the sqlite source")
		}
	case SourceS3:
		s3 := c.Catalog.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.Key == "" {
			return errors.New("catalog.s3 endpoint, bucket and key are required for the s3 source")
		}
	default:
		return fmt.Errorf("catalog.source %q must be %q, %q or %q", c.Catalog.Source, SourceFile, SourceSQLite, SourceS3)
	}
	if c.Catalog.Watch && c.Catalog.Source != SourceFile {
		return errors.New("catalog.watch is only supported for the file source")
	}
	if c.Catalog.RefreshInterval < 0 {
		return errors.New("catalog.refresh_interval must not be negative")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
