package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("Unexpected default redis addr: %s", cfg.RedisAddr)
	}
	if cfg.BackendURL != "http://127.0.0.1:8080" {
		t.Errorf("Unexpected default backend URL: %s", cfg.BackendURL)
	}
	if cfg.BackendToken != "" {
		t.Errorf("Expected empty default token, got %q", cfg.BackendToken)
	}
	if cfg.RangefinderPort != "/dev/ttymxc2" {
		t.Errorf("Unexpected default rangefinder port: %s", cfg.RangefinderPort)
	}
	if cfg.MetricsAddr != ":9641" {
		t.Errorf("Unexpected default metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.KioskID != "kiosk-0" {
		t.Errorf("Unexpected default kiosk ID: %s", cfg.KioskID)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KIOSK_REDIS_ADDR", "10.0.0.5:6380")
	t.Setenv("KIOSK_BACKEND_URL", "https://backend.example.com")
	t.Setenv("KIOSK_BACKEND_TOKEN", "secret")
	t.Setenv("KIOSK_RANGEFINDER_PORT", "/dev/ttyUSB0")
	t.Setenv("KIOSK_ID", "kiosk-17")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RedisAddr != "10.0.0.5:6380" {
		t.Errorf("Redis addr not read from env: %s", cfg.RedisAddr)
	}
	if cfg.BackendURL != "https://backend.example.com" {
		t.Errorf("Backend URL not read from env: %s", cfg.BackendURL)
	}
	if cfg.BackendToken != "secret" {
		t.Errorf("Token not read from env: %q", cfg.BackendToken)
	}
	if cfg.RangefinderPort != "/dev/ttyUSB0" {
		t.Errorf("Rangefinder port not read from env: %s", cfg.RangefinderPort)
	}
	if cfg.KioskID != "kiosk-17" {
		t.Errorf("Kiosk ID not read from env: %s", cfg.KioskID)
	}
}
