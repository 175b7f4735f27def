package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "GENSTUDIO"

// Load reads defaults, an optional config file named by GENSTUDIO_CONFIG and
// GENSTUDIO_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT, STORAGE_PATH and API_KEY are accepted unprefixed too.
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port: %w", err)
	}
	if err := v.BindEnv("storage.path", envPrefix+"_STORAGE_PATH", "STORAGE_PATH"); err != nil {
		return nil, fmt.Errorf("failed to bind storage path: %w", err)
	}
	if err := v.BindEnv("provider.api_key", envPrefix+"_PROVIDER_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key: %w", err)
	}

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Provider.BaseURL = strings.TrimSuffix(cfg.Provider.BaseURL, "/")
	if cfg.Server.Port != "" && cfg.Server.Port[0] != ':' {
		cfg.Server.Port = ":" + cfg.Server.Port
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("storage.driver", "pebble")
	v.SetDefault("storage.path", "./data/genstudio")
	v.SetDefault("storage.batch_writes", false)

	v.SetDefault("provider.base_url", DefaultBaseURL)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.request_timeout", "0s")
	v.SetDefault("provider.requests_per_second", 10.0)
	v.SetDefault("provider.max_workers", 10)
}
