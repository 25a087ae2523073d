// Package config loads the mediator CLI configuration from an HCL file.
//
// Attribute expressions may reference environment variables as env.NAME:
//
//	valkey {
//	  address = env.VALKEY_ADDR
//	}
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/sirupsen/logrus"
	"github.com/zclconf/go-cty/cty"
)

const (
	TransportValkey = "valkey"
	TransportStream = "stream"
)

type Config struct {
	LogLevel   string        `hcl:"log_level,optional"`
	Workers    int           `hcl:"workers,optional"`
	BufferSize int           `hcl:"buffer_size,optional"`
	Transport  string        `hcl:"transport,optional"`
	Valkey     *ValkeyConfig `hcl:"valkey,block"`
	Stream     *StreamConfig `hcl:"stream,block"`
}

type ValkeyConfig struct {
	Address string `hcl:"address"`
	Channel string `hcl:"channel,optional"`
}

type StreamConfig struct {
	Address string `hcl:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates the HCL file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, src)
}

// Parse decodes src, whose filename must end in .hcl.
func Parse(filename string, src []byte) (*Config, error) {
	cfg := &Config{}
	if err := hclsimple.Decode(filename, src, evalContext(os.Environ()), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Workers == 0 {
		c.Workers = 64
	}
	if c.BufferSize == 0 {
		c.BufferSize = 100
	}
	if c.Transport == "" {
		c.Transport = TransportValkey
	}
	if c.Valkey == nil {
		c.Valkey = &ValkeyConfig{Address: "localhost:6379"}
	}
	if c.Valkey.Channel == "" {
		c.Valkey.Channel = "mediator"
	}
	if c.Stream == nil {
		c.Stream = &StreamConfig{Address: "127.0.0.1:7070"}
	}
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	switch c.Transport {
	case TransportValkey, TransportStream:
	default:
		return fmt.Errorf("invalid transport %q: must be %q or %q", c.Transport, TransportValkey, TransportStream)
	}
	return nil
}

// Address returns the address of the selected transport.
func (c *Config) Address() string {
	if c.Transport == TransportStream {
		return c.Stream.Address
	}
	return c.Valkey.Address
}

func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}
