package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.True(t, cfg.IsDev())
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, int64(20<<20), cfg.Pipeline.MaxUploadBytes)
	assert.Equal(t, StoreMemory, cfg.Credentials.Store)
	assert.Equal(t, time.Hour, cfg.Credentials.TTL)
	assert.Len(t, cfg.Providers, len(llm.Providers()))

	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
  allowed_origins:
    - https://app.example.com
log:
  level: debug
  format: console
pipeline:
  default_vision_model: gpt-4o
  stage_timeout: 90s
providers:
  huggingface:
    rps: 2
    burst: 4
    base_url: http://localhost:9999/v1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "gpt-4o", cfg.Pipeline.DefaultVisionModel)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.StageTimeout)

	fc := cfg.FactoryConfig()
	assert.Equal(t, "http://localhost:9999/v1", fc.BaseURLs[llm.ProviderHuggingFace])
	assert.Equal(t, llm.RateLimit{RequestsPerSecond: 2, Burst: 4}, fc.Limits[llm.ProviderHuggingFace])
	assert.NotContains(t, fc.Limits, llm.ProviderOpenAI)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://bare@localhost/labsight")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "7000")
	t.Setenv("LABSIGHT_LOG_LEVEL", "warn")
	t.Setenv("LABSIGHT_CREDENTIALS_STORE", "redis")
	t.Setenv("LABSIGHT_PIPELINE_STAGE_TIMEOUT", "2m")
	t.Setenv("LABSIGHT_SERVER_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LABSIGHT_PROVIDERS_OPENAI_RPS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://bare@localhost/labsight", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, StoreRedis, cfg.Credentials.Store)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.StageTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5.0, cfg.Providers["openai"].RPS)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedWinsOverBare(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://bare@localhost/labsight")
	t.Setenv("LABSIGHT_DATABASE_URL", "postgres://prefixed@localhost/labsight")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prefixed@localhost/labsight", cfg.Database.URL)
}

func TestLoad_BadFile(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "server.port"},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }, "server.port"},
		{"bad env", func(c *Config) { c.Server.Env = "staging" }, "server.env"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero stage timeout", func(c *Config) { c.Pipeline.StageTimeout = 0 }, "pipeline.stage_timeout"},
		{"zero upload", func(c *Config) { c.Pipeline.MaxUploadBytes = 0 }, "pipeline.max_upload_bytes"},
		{"redis without url", func(c *Config) { c.Credentials.Store = StoreRedis }, "redis.url"},
		{"unknown store", func(c *Config) { c.Credentials.Store = "disk" }, "credentials.store"},
		{"zero ttl", func(c *Config) { c.Credentials.TTL = 0 }, "credentials.ttl"},
		{"production without auth", func(c *Config) { c.Server.Env = "production" }, "auth.domain"},
		{"unknown provider", func(c *Config) { c.Providers["mistral"] = ProviderConfig{} }, "providers.mistral"},
		{"negative rps", func(c *Config) { c.Providers["openai"] = ProviderConfig{RPS: -1} }, "providers.openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = ""
	cfg.Log.Format = "xml"
	cfg.Credentials.TTL = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "credentials.ttl")
}

func TestValidate_ProductionWithAuth(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Env = "production"
	cfg.Auth.Domain = "https://labsight.eu.auth0.com"
	cfg.Auth.Audience = "https://api.labsight.example"

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.AuthSettings().Enabled())
}

func TestDerivedSettings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Log.Level = "debug"
	cfg.Database.MaxConns = 4

	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
	assert.Equal(t, int32(4), cfg.PoolConfig().MaxConns)
	assert.Equal(t, time.Hour, cfg.PoolConfig().MaxConnLifetime)
}
