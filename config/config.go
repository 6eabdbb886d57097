// Package config loads the operational configuration for a holyrigd
// process: which rigs to run, where their schema/model files and serial
// ports live, the RPC listen address, and the §4.4/§4.6 tunables (R, K, T,
// F, Q).
//
// Grounded on tab-fuku/internal/config/config.go's viper.New +
// ReadConfig + Unmarshal shape, generalized from one fuku.yaml service
// topology to a rig topology, and its DefaultConfig/Validate split between
// "fill in defaults" and "refuse to start on nonsense."
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// RigConfig is one configured transceiver.
type RigConfig struct {
	ID         string `mapstructure:"id"`
	SchemaFile string `mapstructure:"schema_file"`
	ModelFile  string `mapstructure:"model_file"`
	Port       string `mapstructure:"port"`
	BaudRate   int    `mapstructure:"baud_rate"`

	InitRetries    int           `mapstructure:"init_retries"`     // R
	ReconnectEvery time.Duration `mapstructure:"reconnect_every"`  // K
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout"` // T
	TimeoutLimit   int           `mapstructure:"timeout_limit"`    // F
}

// Config is the full holyrigd configuration.
type Config struct {
	Rigs []RigConfig `mapstructure:"rigs"`

	RPC struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"rpc"`

	Subscriptions struct {
		QueueDepth int `mapstructure:"queue_depth"` // Q
	} `mapstructure:"subscriptions"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"metrics"`
}

// Default tunables, mirrored from spec.md §4.4/§4.6 defaults.
const (
	DefaultInitRetries     = 3
	DefaultReconnectEvery  = 10 * time.Second
	DefaultExchangeTimeout = 2 * time.Second
	DefaultTimeoutLimit    = 3
	DefaultQueueDepth      = 32
)

// DefaultConfig returns a Config with every tunable at its spec.md default.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.RPC.ListenAddr = "0.0.0.0:7362"
	cfg.Subscriptions.QueueDepth = DefaultQueueDepth
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Metrics.ListenAddr = ""
	return cfg
}

// Load reads a YAML or TOML config file at path and overlays it onto
// DefaultConfig, then validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType(configType(path))
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg.applyRigDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func configType(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			switch path[i+1:] {
			case "yml":
				return "yaml"
			default:
				return path[i+1:]
			}
		}
	}
	return "yaml"
}

func (c *Config) applyRigDefaults() {
	for i := range c.Rigs {
		r := &c.Rigs[i]
		if r.InitRetries <= 0 {
			r.InitRetries = DefaultInitRetries
		}
		if r.ReconnectEvery <= 0 {
			r.ReconnectEvery = DefaultReconnectEvery
		}
		if r.ExchangeTimeout <= 0 {
			r.ExchangeTimeout = DefaultExchangeTimeout
		}
		if r.TimeoutLimit <= 0 {
			r.TimeoutLimit = DefaultTimeoutLimit
		}
		if r.BaudRate <= 0 {
			r.BaudRate = 9600
		}
	}
}

// Validate refuses to start a process whose configuration can't possibly
// run: duplicate rig ids, a rig missing its schema/model/port.
func (c *Config) Validate() error {
	if len(c.Rigs) == 0 {
		return fmt.Errorf("no rigs configured")
	}

	seen := make(map[string]bool, len(c.Rigs))
	for _, r := range c.Rigs {
		if r.ID == "" {
			return fmt.Errorf("rig entry missing id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rig id %q", r.ID)
		}
		seen[r.ID] = true

		if r.SchemaFile == "" {
			return fmt.Errorf("rig %q: schema_file is required", r.ID)
		}
		if r.ModelFile == "" {
			return fmt.Errorf("rig %q: model_file is required", r.ID)
		}
		if r.Port == "" {
			return fmt.Errorf("rig %q: port is required", r.ID)
		}
	}

	if c.RPC.ListenAddr == "" {
		return fmt.Errorf("rpc.listen_addr is required")
	}

	return nil
}
