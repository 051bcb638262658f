// Package config holds the server configuration surface.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" decode naturally.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the TCP address the server accepts connections on.
	ListenAddr string `yaml:"listen_addr"`
	// CapacityBytes bounds the total size of stored values; <= 0 means
	// unbounded.
	CapacityBytes int64 `yaml:"capacity_bytes"`
	// DefaultTTL applies to SET requests that carry no TTL; 0 means
	// entries without a TTL never expire.
	DefaultTTL Duration `yaml:"default_ttl"`
	// MaxConns caps concurrent client connections; 0 means no cap.
	MaxConns int `yaml:"max_conns"`
	// Shards is the number of store partitions.
	Shards int `yaml:"shards"`
}

func Default() Config {
	return Config{
		ListenAddr:    "127.0.0.1:7878",
		CapacityBytes: 0,
		DefaultTTL:    0,
		MaxConns:      0,
		Shards:        16,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.CapacityBytes < 0 {
		return errors.New("capacity_bytes must not be negative")
	}
	if c.DefaultTTL < 0 {
		return errors.New("default_ttl must not be negative")
	}
	if c.MaxConns < 0 {
		return errors.New("max_conns must not be negative")
	}
	if c.Shards < 0 {
		return errors.New("shards must not be negative")
	}
	return nil
}
