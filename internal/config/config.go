// Package config loads viewcache runtime settings from the environment and
// scenario definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings shared by the viewcache commands. Every field
// can be set through the environment (or a .env file). LogFormat "auto"
// picks text on a terminal and JSON otherwise.
type Config struct {
	LogLevel  string `env:"VIEWCACHE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"VIEWCACHE_LOG_FORMAT" envDefault:"text"`

	Capacity             int    `env:"VIEWCACHE_CAPACITY" envDefault:"1000"`
	MaxConcurrentFetches int    `env:"VIEWCACHE_MAX_CONCURRENT_FETCHES" envDefault:"0"`
	Policy               string `env:"VIEWCACHE_POLICY" envDefault:"automatic"`

	MetricsAddr string `env:"VIEWCACHE_METRICS_ADDR" envDefault:":9090"`

	Sim Sim `envPrefix:"VIEWCACHE_SIM_"`
}

// Sim configures the synthetic debugger target.
type Sim struct {
	Processes int           `env:"PROCESSES" envDefault:"2"`
	Threads   int           `env:"THREADS" envDefault:"4"`
	Frames    int           `env:"FRAMES" envDefault:"8"`
	Variables int           `env:"VARIABLES" envDefault:"6"`
	Latency   time.Duration `env:"LATENCY" envDefault:"1ms"`
	FailRate  float64       `env:"FAIL_RATE" envDefault:"0"`
	Seed      int64         `env:"SEED" envDefault:"1"`
}

// Load reads the optional dotenv files (".env" when none is given) and
// parses the environment into a Config. Missing dotenv files are skipped.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Join(ErrDotenv, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that config values are usable.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be non-negative, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.MaxConcurrentFetches < 0 {
		return fmt.Errorf("%w: max concurrent fetches must be non-negative, got %d", ErrInvalidConfig, c.MaxConcurrentFetches)
	}
	if c.Policy == "" {
		return fmt.Errorf("%w: policy cannot be empty", ErrInvalidConfig)
	}
	return c.Sim.Validate()
}

// Validate checks the target shape and fault settings.
func (s Sim) Validate() error {
	if s.Processes < 0 || s.Threads < 0 || s.Frames < 0 || s.Variables < 0 {
		return fmt.Errorf("%w: sim tree sizes must be non-negative", ErrInvalidConfig)
	}
	if s.Latency < 0 {
		return fmt.Errorf("%w: sim latency must be non-negative, got %v", ErrInvalidConfig, s.Latency)
	}
	if s.FailRate < 0 || s.FailRate > 1 {
		return fmt.Errorf("%w: sim fail rate must be within [0,1], got %v", ErrInvalidConfig, s.FailRate)
	}
	return nil
}
