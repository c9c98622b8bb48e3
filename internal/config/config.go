// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the service needs to talk to its
// collaborators. GPIO and PWM pin assignments are fixed by the board
// layout and live in internal/hardware instead.
type Config struct {
	RedisAddr string `env:"KIOSK_REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	BackendURL   string `env:"KIOSK_BACKEND_URL" envDefault:"http://127.0.0.1:8080"`
	BackendToken string `env:"KIOSK_BACKEND_TOKEN"`

	RangefinderPort string `env:"KIOSK_RANGEFINDER_PORT" envDefault:"/dev/ttymxc2"`

	MetricsAddr string `env:"KIOSK_METRICS_ADDR" envDefault:":9641"`

	// KioskID identifies this unit in order requests and metrics.
	KioskID string `env:"KIOSK_ID" envDefault:"kiosk-0"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
