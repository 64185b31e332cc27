package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration. Every field has a usable
// default; a missing file is not an error.
type Config struct {
	// Listen is the callback listener bind address for GENA NOTIFY
	// traffic, e.g. ":3400". Port 0 picks an ephemeral port.
	Listen string `yaml:"listen"`
	// AdvertiseIP is the address devices are told to push
	// notifications to. Empty means autodetect from the route toward
	// the device network.
	AdvertiseIP string `yaml:"advertise_ip"`

	Discovery Discovery `yaml:"discovery"`
	Events    Events    `yaml:"events"`
	Log       Log       `yaml:"log"`
}

// Discovery tunes device enumeration.
type Discovery struct {
	Timeout time.Duration `yaml:"timeout"`
	// Subnets are /24 prefixes for the scan fallback ("192.168.1").
	Subnets []string `yaml:"subnets"`
	// StaticIPs bypass discovery entirely when set.
	StaticIPs []string `yaml:"static_ips"`
	// DisableScan turns off the port-scan fallback on networks where
	// probing is unwelcome.
	DisableScan bool `yaml:"disable_scan"`
}

// Events tunes the subscription layer.
type Events struct {
	// RequestedTimeout is the GENA subscription lifetime asked of
	// devices.
	RequestedTimeout time.Duration `yaml:"requested_timeout"`
}

// Log controls output format and verbosity.
type Log struct {
	Level string `yaml:"level"` // debug, info, warn, error
	// JSON switches from console output to structured JSON.
	JSON bool `yaml:"json"`
}

// Default returns the configuration used when nothing is provided.
func Default() Config {
	return Config{
		Listen: ":3400",
		Discovery: Discovery{
			Timeout: 5 * time.Second,
		},
		Events: Events{
			RequestedTimeout: 10 * time.Minute,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path or missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers ZONEHUB_* variables over the file for the knobs that
// commonly differ per host.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ZONEHUB_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("ZONEHUB_ADVERTISE_IP"); v != "" {
		cfg.AdvertiseIP = v
	}
	if v := os.Getenv("ZONEHUB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ZONEHUB_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
	if v := os.Getenv("ZONEHUB_DISCOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Discovery.Timeout = d
		}
	}
}

func (c Config) validate() error {
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery timeout must be positive, got %s", c.Discovery.Timeout)
	}
	if c.Events.RequestedTimeout < time.Minute {
		return fmt.Errorf("requested subscription timeout must be at least 1m, got %s", c.Events.RequestedTimeout)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
