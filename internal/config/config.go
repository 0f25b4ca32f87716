package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Load fills it from defaults, then
// an optional YAML file, then GBCE_* environment variables.
type Config struct {
	Server struct {
		Address     string        `yaml:"address"`
		Port        int           `yaml:"port"`
		Workers     int           `yaml:"workers"`
		ConnTimeout time.Duration `yaml:"conn_timeout"`
	} `yaml:"server"`

	Metrics struct {
		Window         time.Duration `yaml:"window"`
		CommonDividend float64       `yaml:"common_dividend"`
		Workers        int           `yaml:"workers"`
	} `yaml:"metrics"`

	Demo struct {
		OrdersPerInstrument int           `yaml:"orders_per_instrument"`
		Spacing             time.Duration `yaml:"spacing"`
		Seed                uint64        `yaml:"seed"`
	} `yaml:"demo"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console" or "json"
		File   string `yaml:"file"`   // Rotated log file, empty to disable
	} `yaml:"logging"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	var cfg Config
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 9001
	cfg.Server.Workers = 10
	cfg.Server.ConnTimeout = 30 * time.Second
	cfg.Metrics.Window = 15 * time.Minute
	cfg.Metrics.CommonDividend = 20
	cfg.Metrics.Workers = 4
	cfg.Demo.OrdersPerInstrument = 10
	cfg.Demo.Spacing = 5 * time.Minute
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty) and
// applies environment overrides. A .env file in the working directory is
// loaded first if present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server workers must be positive")
	}
	if c.Server.ConnTimeout <= 0 {
		return fmt.Errorf("server connection timeout must be positive")
	}
	if c.Metrics.Window <= 0 {
		return fmt.Errorf("metrics window must be positive")
	}
	if c.Metrics.CommonDividend < 0 {
		return fmt.Errorf("common dividend must not be negative")
	}
	if c.Metrics.Workers <= 0 {
		return fmt.Errorf("metrics workers must be positive")
	}
	if c.Demo.OrdersPerInstrument <= 0 {
		return fmt.Errorf("demo orders per instrument must be positive")
	}
	if c.Demo.Spacing <= 0 {
		return fmt.Errorf("demo spacing must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	return nil
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// overrideWithEnv applies GBCE_<SECTION>_<FIELD> variables, e.g.
// GBCE_DEMO_SEED. The logging section uses the GBCE_LOG_ prefix.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("GBCE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if err := intEnv("GBCE_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := intEnv("GBCE_SERVER_WORKERS", &cfg.Server.Workers); err != nil {
		return err
	}
	if err := durationEnv("GBCE_SERVER_CONN_TIMEOUT", &cfg.Server.ConnTimeout); err != nil {
		return err
	}
	if err := durationEnv("GBCE_METRICS_WINDOW", &cfg.Metrics.Window); err != nil {
		return err
	}
	if err := intEnv("GBCE_METRICS_WORKERS", &cfg.Metrics.Workers); err != nil {
		return err
	}
	if v := os.Getenv("GBCE_METRICS_COMMON_DIVIDEND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GBCE_METRICS_COMMON_DIVIDEND: %w", err)
		}
		cfg.Metrics.CommonDividend = f
	}
	if err := intEnv("GBCE_DEMO_ORDERS_PER_INSTRUMENT", &cfg.Demo.OrdersPerInstrument); err != nil {
		return err
	}
	if err := durationEnv("GBCE_DEMO_SPACING", &cfg.Demo.Spacing); err != nil {
		return err
	}
	if v := os.Getenv("GBCE_DEMO_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GBCE_DEMO_SEED: %w", err)
		}
		cfg.Demo.Seed = seed
	}
	if v := os.Getenv("GBCE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GBCE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GBCE_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	return nil
}

func intEnv(key string, dst *int) error {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}
