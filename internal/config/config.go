// Package config loads process configuration and holds the live credential
// cell shared by the dispatcher and every in-flight poller.
package config

import "time"

const (
	DefaultBaseURL = "https://www.vivaapi.cn"
	DefaultPort    = "8080"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port" validate:"required"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json text"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"required,oneof=pebble sqlite"`
	Path        string `mapstructure:"path" validate:"required"`
	BatchWrites bool   `mapstructure:"batch_writes"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey is the environment-provided fallback credential.
	APIKey string `mapstructure:"api_key"`
	// RequestTimeout of zero leaves outbound calls unbounded.
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	MaxWorkers        int           `mapstructure:"max_workers" validate:"gt=0"`
}
