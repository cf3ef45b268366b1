package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	internal "github.com/ZanzyTHEbar/twinkle-gallery/gallery"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// Keys are flat so existing .streamlit/secrets.toml files keep
// working; the Go side groups them with squashed structs.
type Config struct {
	Data   DataConfig   `mapstructure:",squash"`
	LLM    LLMConfig    `mapstructure:",squash"`
	Theme  ThemeConfig  `mapstructure:",squash"`
	Server ServerConfig `mapstructure:",squash"`

	// Users is decoded separately because it may be a list or an index map.
	Users []UserConfig `mapstructure:"-"`
}

// DataConfig locates the JSONL dataset.
type DataConfig struct {
	Path string `mapstructure:"data"` // file name or absolute path
}

// LLMConfig stores generation client settings.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"`          // "openai" or "anthropic"
	APIBase         string  `mapstructure:"my_api_base"`       // OpenAI compatible base URL
	APIKey          string  `mapstructure:"openai_api_key"`    // key for the OpenAI compatible endpoint
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"` // key when provider is anthropic
	Model           string  `mapstructure:"my_model_name"`
	BackgroundProb  float64 `mapstructure:"background_prob"` // 0..1

	// SupportsVision accepts 1/true/yes, so it is parsed by hand.
	SupportsVision bool `mapstructure:"-"`
}

// ThemeConfig stores the light/dark logo assets.
type ThemeConfig struct {
	LogoLight string `mapstructure:"app_logo_light"`
	LogoDark  string `mapstructure:"app_logo_dark"`
	Timezone  string `mapstructure:"timezone"`
}

// ServerConfig stores the HTTP listener and logging settings.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
}

// UserConfig is one entry of the credential list.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// Configured reports whether the selected provider has credentials. The
// OpenAI compatible endpoint needs both a key and a base URL.
func (c LLMConfig) Configured() bool {
	switch strings.ToLower(c.Provider) {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return c.APIKey != "" && c.APIBase != ""
	}
}

// LoadConfig resolves configuration once at startup. Sources, highest
// priority first: overrides (CLI flags), environment variables, the secrets
// file, defaults. An explicit configPath must exist.
func LoadConfig(configPath string, overrides map[string]any) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(internal.DefaultSecretsDir)
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.SetConfigName(internal.DefaultSecretsName)
		v.SetConfigType(internal.DefaultSecretsType)
	}

	v.SetDefault("data", internal.DefaultDataPath)

	v.SetDefault("provider", internal.DefaultProvider)
	v.SetDefault("my_api_base", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("my_model_name", internal.DefaultModel)
	v.SetDefault("supports_vision", "true")
	v.SetDefault("background_prob", internal.DefaultBackgroundProb)

	v.SetDefault("app_logo_light", internal.DefaultLogoLight)
	v.SetDefault("app_logo_dark", internal.DefaultLogoDark)
	v.SetDefault("timezone", internal.DefaultTimezone)

	v.SetDefault("listen", internal.DefaultListenAddr)
	v.SetDefault("log_level", internal.DefaultLogLevel)

	// DATA, MY_API_BASE, OPENAI_API_KEY ... map straight onto the flat keys.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.LLM.SupportsVision = parseBool(v.GetString("supports_vision"))
	if cfg.LLM.BackgroundProb < 0 {
		cfg.LLM.BackgroundProb = 0
	}
	if cfg.LLM.BackgroundProb > 1 {
		cfg.LLM.BackgroundProb = 1
	}

	users, err := decodeUsers(v.Get("users"))
	if err != nil {
		return nil, fmt.Errorf("unable to decode users: %w", err)
	}
	cfg.Users = users

	return &cfg, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// decodeUsers accepts either a list of tables or a map keyed by position
// ({"0": {...}, "1": {...}}), ordered by key.
func decodeUsers(raw any) ([]UserConfig, error) {
	if raw == nil {
		return nil, nil
	}

	var entries []any
	switch t := raw.(type) {
	case []any:
		entries = t
	case []map[string]any:
		for _, m := range t {
			entries = append(entries, m)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, t[k])
		}
	default:
		return nil, fmt.Errorf("unsupported users type %T", raw)
	}

	users := make([]UserConfig, 0, len(entries))
	for i, entry := range entries {
		var u UserConfig
		if err := mapstructure.WeakDecode(entry, &u); err != nil {
			return nil, fmt.Errorf("user %d: %w", i, err)
		}
		if u.Role == "" {
			u.Role = "editor"
		}
		users = append(users, u)
	}
	return users, nil
}
