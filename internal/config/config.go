package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile  = "config.yaml"
	DefaultStoragePath = ".socialcast/socialcast.db"
	DefaultUserID      = "default"
	DefaultLogLevel    = "info"
	DefaultTimeout     = social.DefaultTimeout

	// EnvPrefix prefixes every environment variable read by Load and
	// CredentialsFromEnv.
	EnvPrefix = "SOCIALCAST_"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	UserID    string                    `yaml:"user_id"`
	Storage   StorageConfig             `yaml:"storage"`
	Log       LogConfig                 `yaml:"log"`
	HTTP      HTTPConfig                `yaml:"http"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Timeout Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	// File is a Prometheus textfile-collector path written after each command.
	File string `yaml:"file"`
}

// PlatformConfig is the per-platform block. Credential values are never
// stored in the file; CredentialsEnv maps a credential field to the
// environment variable holding it.
type PlatformConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`

	HashtagLimit      *int      `yaml:"hashtag_limit"`
	DefaultVisibility *string   `yaml:"default_visibility"`
	AutoHashtags      *bool     `yaml:"auto_hashtags"`
	MaxPostsPerHour   *int      `yaml:"max_posts_per_hour"`
	MinPostInterval   *Duration `yaml:"min_post_interval"`

	CredentialsEnv map[string]string `yaml:"credentials_env"`
}

// Load reads the YAML file at path, applies defaults and SOCIALCAST_*
// overrides, and validates. An empty path skips the file. A .env file in the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// DefaultPath returns ~/.config/socialcast/config.yaml, or "" when the
// user config dir cannot be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "socialcast", DefaultConfigFile)
}

func applyDefaults(cfg *Config) {
	if cfg.UserID == "" {
		cfg.UserID = DefaultUserID
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.HTTP.Timeout.Duration == 0 {
		cfg.HTTP.Timeout.Duration = DefaultTimeout
	}
	if cfg.Platforms == nil {
		cfg.Platforms = map[string]PlatformConfig{}
	}
}

func applyEnv(cfg *Config) {
	if v := getEnv("USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := getEnv("DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getEnv("METRICS_FILE"); v != "" {
		cfg.Metrics.File = v
	}
	if v := getEnv("TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Timeout.Duration = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.HTTP.Timeout.Duration < 0 {
		return errors.New("http.timeout: must not be negative")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q (want debug, info, warn or error)", cfg.Log.Level)
	}

	var errs []error
	for name, pc := range cfg.Platforms {
		if _, err := social.ParsePlatform(name); err != nil {
			errs = append(errs, fmt.Errorf("platforms.%s: %w", name, err))
			continue
		}
		if pc.HashtagLimit != nil && *pc.HashtagLimit < 0 {
			errs = append(errs, fmt.Errorf("platforms.%s.hashtag_limit: must not be negative", name))
		}
		if pc.DefaultVisibility != nil {
			switch *pc.DefaultVisibility {
			case "public", "private", "unlisted", "connections":
			default:
				errs = append(errs, fmt.Errorf("platforms.%s.default_visibility: unknown value %q", name, *pc.DefaultVisibility))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Config) platform(p social.Platform) (PlatformConfig, bool) {
	for name, pc := range c.Platforms {
		if parsed, err := social.ParsePlatform(name); err == nil && parsed == p {
			return pc, true
		}
	}
	return PlatformConfig{}, false
}

// Enabled returns the platforms enabled in the file, in enum order. A block
// without an explicit enabled flag counts as enabled.
func (c *Config) Enabled() []social.Platform {
	var out []social.Platform
	for _, p := range social.Platforms() {
		pc, ok := c.platform(p)
		if !ok {
			continue
		}
		if pc.Enabled == nil || *pc.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Endpoint returns the API root override for p, or "".
func (c *Config) Endpoint(p social.Platform) string {
	if v := getEnv(envName(p, "endpoint")); v != "" {
		return v
	}
	pc, _ := c.platform(p)
	return pc.Endpoint
}

// Override returns the settings override configured for p.
func (c *Config) Override(p social.Platform) social.SettingsOverride {
	pc, _ := c.platform(p)
	o := social.SettingsOverride{
		HashtagLimit:      pc.HashtagLimit,
		DefaultVisibility: pc.DefaultVisibility,
		AutoHashtags:      pc.AutoHashtags,
		MaxPostsPerHour:   pc.MaxPostsPerHour,
	}
	if pc.MinPostInterval != nil {
		d := pc.MinPostInterval.Duration
		o.MinPostInterval = &d
	}
	return o
}

// Overrides returns the settings override of every configured platform.
func (c *Config) Overrides() map[social.Platform]social.SettingsOverride {
	out := map[social.Platform]social.SettingsOverride{}
	for _, p := range social.Platforms() {
		if _, ok := c.platform(p); ok {
			out[p] = c.Override(p)
		}
	}
	return out
}

// Credentials resolves the credentials of p from the variables named in the
// platform's credentials_env block, then from SOCIALCAST_<PLATFORM>_<FIELD>.
func (c *Config) Credentials(p social.Platform) (social.Credentials, error) {
	var creds social.Credentials
	pc, _ := c.platform(p)
	for field, env := range pc.CredentialsEnv {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			creds.Set(field, v)
		}
	}
	fromEnv := readEnvCredentials(p)
	creds = creds.Merge(fromEnv)
	return creds, checkRequired(p, creds)
}
