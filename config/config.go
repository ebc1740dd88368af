// Package config loads the gateway's runtime settings from environment
// variables (and an optional .env-style file), the way a twelve-factor
// service expects to be deployed — no on-disk YAML, no auto-repair.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is every setting the gateway needs to boot.
type Config struct {
	// Addr is the host:port the HTTP server listens on.
	Addr string `mapstructure:"addr"`
	// ApiBase is this service's own externally reachable base URL, used
	// to build notify_url/return_url for outbound channel requests.
	ApiBase string `mapstructure:"api_base"`
	// ApiLiveKey gates every /v1 route via a static bearer token.
	ApiLiveKey string `mapstructure:"api_live_key"`
	// WebhookRSA256PrivateKey signs outbound webhook envelopes (PKCS#8 PEM).
	WebhookRSA256PrivateKey string `mapstructure:"webhook_rsa256_private_key"`
	// DatabaseURL is a gorm-style DSN; DatabaseDriver selects the dialect
	// (mysql, postgres, sqlite).
	DatabaseURL    string `mapstructure:"database_url"`
	DatabaseDriver string `mapstructure:"database_driver"`
	// LogLevel controls logrus's verbosity (panic, fatal, error, warn, info, debug, trace).
	LogLevel string `mapstructure:"log_level"`
	// GinMode is one of gin's debug/release/test modes.
	GinMode string `mapstructure:"gin_mode"`
}

// Load reads the gateway's config from environment variables prefixed
// PINGXX_ (e.g. PINGXX_API_BASE), falling back to the given defaults for
// anything unset. envFile, if non-empty, is an optional .env-style file
// read before the environment is consulted.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "gateway.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("gin_mode", "release")

	v.SetEnvPrefix("PINGXX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	for _, key := range []string{
		"addr", "api_base", "api_live_key", "webhook_rsa256_private_key",
		"database_url", "database_driver", "log_level", "gin_mode",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.ApiLiveKey == "" {
		return nil, fmt.Errorf("config: PINGXX_API_LIVE_KEY is required")
	}
	if cfg.WebhookRSA256PrivateKey == "" {
		return nil, fmt.Errorf("config: PINGXX_WEBHOOK_RSA256_PRIVATE_KEY is required")
	}
	if cfg.ApiBase == "" {
		return nil, fmt.Errorf("config: PINGXX_API_BASE is required")
	}

	return cfg, nil
}
