package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Kernel    KernelConfig
	Data      DataConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// KernelConfig holds the simulated kernel's tunables.
type KernelConfig struct {
	QuantumMS        int `envconfig:"KERNEL_QUANTUM_MS" default:"100"`
	TickMS           int `envconfig:"KERNEL_TICK_MS" default:"20"`
	TotalMemoryKB    int `envconfig:"KERNEL_TOTAL_MEMORY_KB" default:"1024"`
	ReservedMemoryKB int `envconfig:"KERNEL_RESERVED_MEMORY_KB" default:"256"`
	MaxProcesses     int `envconfig:"KERNEL_MAX_PROCESSES" default:"16"`
	DefaultPriority  int `envconfig:"KERNEL_DEFAULT_PRIORITY" default:"3"`
}

// DataConfig holds persistence paths for collaborator subsystems.
type DataConfig struct {
	Path string `envconfig:"DATA_PATH" default:"./data"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Kernel: KernelConfig{
			QuantumMS:        100,
			TickMS:           20,
			TotalMemoryKB:    1024,
			ReservedMemoryKB: 256,
			MaxProcesses:     16,
			DefaultPriority:  3,
		},
		Data: DataConfig{
			Path: "./data",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
