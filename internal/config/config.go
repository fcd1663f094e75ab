// Package config loads gateway settings from config.yaml, .env and the
// environment, with an optional SSM overlay for secrets.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"llm-gateway/internal/integrations/paramstore"
	"llm-gateway/internal/provider"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// SecretNames lists every credential the gateway knows about. Values are
// only ever read through provider.Credentials.
var SecretNames = []string{
	"OPENAI_API_KEY",
	"GOOGLE_GENERATIVE_AI_API_KEY",
	"CLOUDFLARE_AI_TOKEN",
	"CLOUDFLARE_ACCOUNT_ID",
	"CLOUDFLARE_AUTORAG_NAME",
	"ANTHROPIC_API_KEY",
	"GOOGLE_API_TOKEN",
}

// Upstreams overrides provider endpoints; empty means the provider default.
type Upstreams struct {
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	GeminiBaseURL     string `mapstructure:"gemini_base_url"`
	CloudflareBaseURL string `mapstructure:"cloudflare_base_url"`
	AnthropicBaseURL  string `mapstructure:"anthropic_base_url"`
	AppsScriptBaseURL string `mapstructure:"apps_script_base_url"`
	OllamaHost        string `mapstructure:"ollama_host"`
}

type Config struct {
	HTTPAddr              string `mapstructure:"http_addr"`
	LogLevel              string `mapstructure:"log_level"`
	LogPretty             bool   `mapstructure:"log_pretty"`
	SessionBackend        string `mapstructure:"session_backend"`
	StateTable            string `mapstructure:"state_table"`
	SQLitePath            string `mapstructure:"sqlite_path"`
	ParamPrefix           string `mapstructure:"param_prefix"`
	GeminiSearchGrounding bool   `mapstructure:"gemini_search_grounding"`

	Upstreams `mapstructure:",squash"`

	Secrets provider.Credentials `mapstructure:"-"`
}

var defaults = map[string]any{
	"http_addr":               ":8080",
	"log_level":               "info",
	"log_pretty":              false,
	"session_backend":         BackendDynamoDB,
	"sqlite_path":             "sessions.db",
	"gemini_search_grounding": true,
}

var keys = []string{
	"http_addr", "log_level", "log_pretty", "session_backend", "state_table", "sqlite_path",
	"param_prefix", "gemini_search_grounding", "openai_base_url", "gemini_base_url",
	"cloudflare_base_url", "anthropic_base_url", "apps_script_base_url", "ollama_host",
}

// Load reads .env (if present), then config.yaml at CONFIG_PATH or the
// working directory (if present), then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom is Load without .env handling. An explicit configPath must exist.
func LoadFrom(configPath string) (*Config, error) {
	v := viper.New()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	for _, k := range append(keys, lowerAll(SecretNames)...) {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	switch {
	case configPath != "":
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	default:
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	cfg.Secrets = make(provider.Credentials, len(SecretNames))
	for _, name := range SecretNames {
		if val := strings.TrimSpace(v.GetString(strings.ToLower(name))); val != "" {
			cfg.Secrets[name] = val
		}
	}
	return &cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case BackendDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb session backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: HTTP_ADDR must not be empty")
	}
	return nil
}

// MissingSecrets returns the known secrets that have no value yet.
func (c *Config) MissingSecrets() []string {
	var out []string
	for _, name := range SecretNames {
		if c.Secrets.Get(name) == "" {
			out = append(out, name)
		}
	}
	return out
}

// OverlaySecrets fills secrets still empty after env from Parameter Store
// under ParamPrefix. It is a no-op without a prefix.
func (c *Config) OverlaySecrets(ctx context.Context, g paramstore.Getter) error {
	if strings.TrimSpace(c.ParamPrefix) == "" {
		return nil
	}
	missing := c.MissingSecrets()
	if len(missing) == 0 {
		return nil
	}
	found, err := paramstore.LoadSecrets(ctx, g, c.ParamPrefix, missing)
	if err != nil {
		return fmt.Errorf("config: load secrets: %w", err)
	}
	if c.Secrets == nil {
		c.Secrets = make(provider.Credentials, len(found))
	}
	for name, val := range found {
		c.Secrets[name] = val
	}
	return nil
}

// NeedsAWS reports whether startup must build AWS clients.
func (c *Config) NeedsAWS() bool {
	return c.SessionBackend == BackendDynamoDB || strings.TrimSpace(c.ParamPrefix) != ""
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
