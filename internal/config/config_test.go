package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" || cfg.Workers != 64 || cfg.BufferSize != 100 {
		t.Fatalf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Transport != TransportValkey || cfg.Address() != "localhost:6379" {
		t.Fatalf("Expected valkey on localhost:6379, got: %s %s", cfg.Transport, cfg.Address())
	}
	if cfg.Valkey.Channel != "mediator" {
		t.Fatalf("Expected channel mediator, got: %s", cfg.Valkey.Channel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}
}

func TestParse(t *testing.T) {
	src := `
log_level = "debug"
workers   = 8
transport = "stream"

stream {
  address = "127.0.0.1:9000"
}
`
	cfg, err := Parse("mediator.hcl", []byte(src))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Workers != 8 {
		t.Fatalf("Unexpected values: %+v", cfg)
	}
	if cfg.BufferSize != 100 {
		t.Fatalf("Expected default buffer size, got: %d", cfg.BufferSize)
	}
	if cfg.Address() != "127.0.0.1:9000" {
		t.Fatalf("Expected stream address, got: %s", cfg.Address())
	}
	if cfg.Valkey == nil || cfg.Valkey.Address != "localhost:6379" {
		t.Fatalf("Expected default valkey block, got: %+v", cfg.Valkey)
	}
}

func TestParseEnvInterpolation(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_VALKEY", "valkey.internal:6380")

	src := `
valkey {
  address = env.MEDIATOR_TEST_VALKEY
  channel = "jobs-${env.MEDIATOR_TEST_VALKEY}"
}
`
	cfg, err := Parse("mediator.hcl", []byte(src))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if cfg.Valkey.Address != "valkey.internal:6380" {
		t.Fatalf("Expected address from env, got: %s", cfg.Valkey.Address)
	}
	if cfg.Valkey.Channel != "jobs-valkey.internal:6380" {
		t.Fatalf("Expected interpolated channel, got: %s", cfg.Valkey.Channel)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"log level", `log_level = "loud"`, "log_level"},
		{"transport", `transport = "carrier-pigeon"`, "transport"},
		{"workers", `workers = -1`, "workers"},
		{"buffer size", `buffer_size = -5`, "buffer_size"},
	}

	for _, tt := range tests {
		_, err := Parse("mediator.hcl", []byte(tt.src))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error mentioning %q, got: %v", tt.name, tt.want, err)
		}
	}
}

func TestParseRejectsMalformedHCL(t *testing.T) {
	if _, err := Parse("mediator.hcl", []byte(`valkey {`)); err == nil {
		t.Fatal("Expected a syntax error")
	}
	if _, err := Parse("mediator.hcl", []byte(`valkey {}`)); err == nil {
		t.Fatal("Expected an error for a valkey block without address")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediator.hcl")
	if err := os.WriteFile(path, []byte(`workers = 3`), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Workers != 3 {
		t.Fatalf("Expected 3 workers, got: %d", cfg.Workers)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
