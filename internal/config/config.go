package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	SolidEnabled       bool          `mapstructure:"SOLID_ENABLED"`
	SolidContainerPath string        `mapstructure:"SOLID_FHIR_CONTAINER_PATH"`
	IGPackageURL       string        `mapstructure:"IG_PACKAGE_URL"`
	TestdataPath       string        `mapstructure:"TESTDATA_PATH"`
	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
	PodTimeout         time.Duration `mapstructure:"POD_TIMEOUT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("SOLID_ENABLED", false)
	v.SetDefault("SOLID_FHIR_CONTAINER_PATH", "/weare/fhir")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("POD_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("SOLID_ENABLED")
	v.BindEnv("SOLID_FHIR_CONTAINER_PATH")
	v.BindEnv("IG_PACKAGE_URL")
	v.BindEnv("TESTDATA_PATH")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("POD_TIMEOUT")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if !cfg.SolidEnabled {
		log.Println("WARNING: Solid pod integration is disabled (SOLID_ENABLED=false).")
		log.Println("WARNING: Sessions hydrate from embedded dev data and nothing is persisted.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.PodTimeout <= 0 {
		return fmt.Errorf("POD_TIMEOUT must be positive, got %s", c.PodTimeout)
	}
	if c.SolidEnabled {
		if c.SolidContainerPath == "" {
			return fmt.Errorf("SOLID_FHIR_CONTAINER_PATH is required when SOLID_ENABLED is true")
		}
		if !strings.HasPrefix(c.SolidContainerPath, "/") {
			return fmt.Errorf("SOLID_FHIR_CONTAINER_PATH must start with /, got %q", c.SolidContainerPath)
		}
	}
	return nil
}
