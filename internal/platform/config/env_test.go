package config

import "testing"

type envTestConfig struct {
	Addr  string `env:"CONFIG_TEST_ADDR" envDefault:":5000"`
	Debug bool   `env:"CONFIG_TEST_DEBUG" envDefault:"false"`
}

func TestParseEnvUsesDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":5000")
	}
	if cfg.Debug {
		t.Fatal("debug should default to false")
	}
}

func TestParseEnvReadsEnvironment(t *testing.T) {
	t.Setenv("CONFIG_TEST_ADDR", ":6000")
	t.Setenv("CONFIG_TEST_DEBUG", "true")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":6000" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":6000")
	}
	if !cfg.Debug {
		t.Fatal("debug should be true from env")
	}
}
