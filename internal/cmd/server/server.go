// Package server parses poll command flags and composes transport entrypoints.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/livepoll/server/internal/platform/cmd"
	app "github.com/livepoll/server/internal/services/poll/app"
)

// Config holds poll command configuration.
type Config struct {
	HTTPAddr               string `env:"LIVEPOLL_HTTP_ADDR"             envDefault:":5000"`
	ReadHeaderTimeoutSecs  int    `env:"LIVEPOLL_READ_HEADER_TIMEOUT"   envDefault:"5"`
	ShutdownTimeoutSeconds int    `env:"LIVEPOLL_SHUTDOWN_TIMEOUT"      envDefault:"5"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "poll HTTP listen address")
	fs.IntVar(&cfg.ReadHeaderTimeoutSecs, "read-header-timeout", cfg.ReadHeaderTimeoutSecs, "HTTP read header timeout in seconds")
	fs.IntVar(&cfg.ShutdownTimeoutSeconds, "shutdown-timeout", cfg.ShutdownTimeoutSeconds, "graceful shutdown timeout in seconds")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the poll app and serves the realtime transport.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePoll, func(context.Context) error {
		if err := app.Run(ctx, app.Config{
			HTTPAddr:          cfg.HTTPAddr,
			ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSecs) * time.Second,
			ShutdownTimeout:   time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
		}); err != nil {
			return fmt.Errorf("serve poll: %w", err)
		}
		return nil
	})
}
