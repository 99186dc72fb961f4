// Package config loads labsight settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kamilpajak/labsight/internal/auth"
	"github.com/kamilpajak/labsight/internal/database"
	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/kamilpajak/labsight/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "LABSIGHT"

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Log         LogConfig                 `mapstructure:"log"`
	Database    DatabaseConfig            `mapstructure:"database"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Auth        AuthConfig                `mapstructure:"auth"`
	Pipeline    PipelineConfig            `mapstructure:"pipeline"`
	Credentials CredentialsConfig         `mapstructure:"credentials"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Env            string        `mapstructure:"env"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must outlast both pipeline stages when streaming.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	// Retention deletes stored analyses older than this. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	Domain   string `mapstructure:"domain"`
	Audience string `mapstructure:"audience"`
	JWKSURL  string `mapstructure:"jwks_url"`
}

type PipelineConfig struct {
	DefaultVisionModel string        `mapstructure:"default_vision_model"`
	StageTimeout       time.Duration `mapstructure:"stage_timeout"`
	MaxUploadBytes     int64         `mapstructure:"max_upload_bytes"`
	// ModelsFile replaces the built-in model catalogue when set.
	ModelsFile string `mapstructure:"models_file"`
}

type CredentialsConfig struct {
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// ProviderConfig tunes the outbound client for one AI provider.
type ProviderConfig struct {
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
	BaseURL string  `mapstructure:"base_url"`
}

// Loader reads configuration from all sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a Loader backed by a fresh viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration. Precedence, highest first: bound flags,
// LABSIGHT_* variables, the bare DATABASE_URL/REDIS_URL/PORT variables,
// labsight.yaml, defaults.
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// Common platform variables
	_ = l.v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = l.v.BindEnv("redis.url", envPrefix+"_REDIS_URL", "REDIS_URL")
	_ = l.v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT")

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("labsight")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "labsight"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	return &cfg, nil
}

// Load reads configuration with an optional explicit file.
func Load(configFile string) (*Config, error) {
	return NewLoader().WithConfigFile(configFile).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.retention", "0s")

	v.SetDefault("redis.url", "")

	v.SetDefault("auth.domain", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")

	v.SetDefault("pipeline.default_vision_model", "")
	v.SetDefault("pipeline.stage_timeout", "60s")
	v.SetDefault("pipeline.max_upload_bytes", 20<<20)
	v.SetDefault("pipeline.models_file", "")

	v.SetDefault("credentials.store", StoreMemory)
	v.SetDefault("credentials.ttl", "1h")

	// Registered per provider so LABSIGHT_PROVIDERS_<NAME>_* variables apply
	for _, p := range llm.Providers() {
		v.SetDefault("providers."+string(p)+".rps", 0)
		v.SetDefault("providers."+string(p)+".burst", 0)
		v.SetDefault("providers."+string(p)+".base_url", "")
	}
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

// Validate checks that the configuration is usable and reports every problem.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be a TCP port, got %q", c.Server.Port))
	}
	switch c.Server.Env {
	case "development", "test", "production":
	default:
		errs = append(errs, fmt.Errorf("server.env must be development, test or production, got %q", c.Server.Env))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil || c.Log.Level == "" {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if c.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.max_conns must not be negative"))
	}
	if c.Database.Retention < 0 {
		errs = append(errs, errors.New("database.retention must not be negative"))
	}

	if c.Pipeline.StageTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.stage_timeout must be positive"))
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("pipeline.max_upload_bytes must be positive"))
	}

	switch c.Credentials.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required when credentials.store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("credentials.store must be memory or redis, got %q", c.Credentials.Store))
	}
	if c.Credentials.TTL <= 0 {
		errs = append(errs, errors.New("credentials.ttl must be positive"))
	}

	if c.IsProduction() && !c.AuthSettings().Enabled() {
		errs = append(errs, errors.New("auth.domain is required in production"))
	}

	for name, p := range c.Providers {
		if !llm.IsKnown(name) {
			errs = append(errs, fmt.Errorf("providers.%s: unknown provider", name))
			continue
		}
		if p.RPS < 0 || p.Burst < 0 {
			errs = append(errs, fmt.Errorf("providers.%s: rps and burst must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// AuthSettings returns the token verifier settings.
func (c *Config) AuthSettings() auth.Config {
	return auth.Config{
		Domain:   c.Auth.Domain,
		Audience: c.Auth.Audience,
		JWKSURL:  c.Auth.JWKSURL,
	}
}

// PoolConfig returns the database pool settings.
func (c *Config) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxConns:        c.Database.MaxConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
	}
}

// FactoryConfig returns the provider client settings. Providers left at zero
// rate are unlimited.
func (c *Config) FactoryConfig() llm.FactoryConfig {
	fc := llm.FactoryConfig{
		BaseURLs: make(map[llm.Provider]string),
		Limits:   make(map[llm.Provider]llm.RateLimit),
	}
	for name, p := range c.Providers {
		provider := llm.Provider(name)
		if p.BaseURL != "" {
			fc.BaseURLs[provider] = p.BaseURL
		}
		if p.RPS > 0 {
			fc.Limits[provider] = llm.RateLimit{RequestsPerSecond: p.RPS, Burst: p.Burst}
		}
	}
	return fc
}
