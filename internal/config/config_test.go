package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.SolidEnabled {
		t.Error("solid integration must default to disabled")
	}
	if cfg.SolidContainerPath != "/weare/fhir" {
		t.Errorf("unexpected container path %s", cfg.SolidContainerPath)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("expected 5m sweep interval, got %s", cfg.SweepInterval)
	}
	if cfg.PodTimeout != 30*time.Second {
		t.Errorf("expected 30s pod timeout, got %s", cfg.PodTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SOLID_ENABLED", "true")
	t.Setenv("SWEEP_INTERVAL", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if !cfg.SolidEnabled {
		t.Error("expected solid enabled")
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Errorf("expected 90s sweep interval, got %s", cfg.SweepInterval)
	}
}

func TestIsDev(t *testing.T) {
	if !(&Config{Env: "development"}).IsDev() {
		t.Error("development env must report dev mode")
	}
	if (&Config{Env: "production"}).IsDev() {
		t.Error("production env must not report dev mode")
	}

	t.Setenv("ENV", "production")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDev() {
		t.Error("ENV=production must not report dev mode")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:               "8080",
			SolidContainerPath: "/weare/fhir",
			SweepInterval:      time.Minute,
			PodTimeout:         time.Second,
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := base()
	c.SweepInterval = 0
	if err := c.Validate(); err == nil {
		t.Error("zero sweep interval must fail validation")
	}

	c = base()
	c.PodTimeout = -time.Second
	if err := c.Validate(); err == nil {
		t.Error("negative pod timeout must fail validation")
	}

	c = base()
	c.SolidEnabled = true
	c.SolidContainerPath = ""
	if err := c.Validate(); err == nil {
		t.Error("enabled pod without container path must fail validation")
	}

	c = base()
	c.SolidEnabled = true
	c.SolidContainerPath = "weare/fhir"
	if err := c.Validate(); err == nil {
		t.Error("relative container path must fail validation")
	}
}
