package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

// AppEnv represents the application environment
// ENUM(local,production,development,testing)
type AppEnv string

type Config struct {
	DiscordBotToken        string `koanf:"discord_bot_token"`
	GuildID                string `koanf:"guild_id"`
	StoragePath            string `koanf:"storage_path"`
	HTTPPort               string `koanf:"http_port"`
	PollInterval           int    `koanf:"poll_interval"`
	FetchTimeout           int    `koanf:"fetch_timeout"`
	RetentionCap           int    `koanf:"retention_cap"`
	BackoffCap             int    `koanf:"backoff_cap"`
	FailureNoticeThreshold int    `koanf:"failure_notice_threshold"`
	RetireGrace            int    `koanf:"retire_grace"`
	AppEnv                 AppEnv `koanf:"app_env"`
}

// Load reads configuration from the first config file found and the
// environment, environment values taking precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Try to load config file from various formats
	configFiles := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"config.toml",
	}

	configFile, found := lo.Find(configFiles, func(file string) bool {
		_, err := os.Stat(file)
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Environment variables override config file values
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	// Set defaults
	if !k.Exists("storage_path") {
		k.Set("storage_path", "./data")
	}
	if !k.Exists("http_port") {
		k.Set("http_port", "8080")
	}
	if !k.Exists("poll_interval") {
		k.Set("poll_interval", 300)
	}
	if !k.Exists("fetch_timeout") {
		k.Set("fetch_timeout", 10)
	}
	if !k.Exists("retention_cap") {
		k.Set("retention_cap", 200)
	}
	if !k.Exists("backoff_cap") {
		k.Set("backoff_cap", 3600)
	}
	if !k.Exists("failure_notice_threshold") {
		k.Set("failure_notice_threshold", 5)
	}
	if !k.Exists("retire_grace") {
		k.Set("retire_grace", 300)
	}
	if !k.Exists("app_env") {
		k.Set("app_env", "production")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	if appEnvStr := k.String("app_env"); appEnvStr != "" {
		if env, err := ParseAppEnv(appEnvStr); err == nil {
			cfg.AppEnv = env
		} else {
			cfg.AppEnv = AppEnvProduction
		}
	} else {
		cfg.AppEnv = AppEnvProduction
	}

	if cfg.DiscordBotToken == "" {
		return nil, errors.ErrMissingBotToken
	}

	if cfg.PollInterval <= 0 {
		return nil, oops.With("poll_interval", cfg.PollInterval).Errorf("poll_interval must be positive")
	}
	if cfg.RetentionCap <= 0 {
		return nil, oops.With("retention_cap", cfg.RetentionCap).Errorf("retention_cap must be positive")
	}

	return &cfg, nil
}

// PollIntervalDuration returns the poll interval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// FetchTimeoutDuration returns the fetch timeout as a time.Duration.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// BackoffCapDuration returns the backoff cap as a time.Duration.
func (c *Config) BackoffCapDuration() time.Duration {
	return time.Duration(c.BackoffCap) * time.Second
}

// RetireGraceDuration returns the retire grace period as a time.Duration.
func (c *Config) RetireGraceDuration() time.Duration {
	return time.Duration(c.RetireGrace) * time.Second
}
