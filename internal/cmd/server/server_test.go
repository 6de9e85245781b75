package server

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":5000" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ReadHeaderTimeoutSecs != 5 {
		t.Fatalf("expected default read header timeout, got %d", cfg.ReadHeaderTimeoutSecs)
	}
	if cfg.ShutdownTimeoutSeconds != 5 {
		t.Fatalf("expected default shutdown timeout, got %d", cfg.ShutdownTimeoutSeconds)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("LIVEPOLL_HTTP_ADDR", "env-addr")

	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-shutdown-timeout", "9",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ShutdownTimeoutSeconds != 9 {
		t.Fatalf("expected flag shutdown timeout, got %d", cfg.ShutdownTimeoutSeconds)
	}
}

func TestParseConfigEnvWithoutFlags(t *testing.T) {
	t.Setenv("LIVEPOLL_HTTP_ADDR", "env-addr")

	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "env-addr" {
		t.Fatalf("expected env http addr, got %q", cfg.HTTPAddr)
	}
}
