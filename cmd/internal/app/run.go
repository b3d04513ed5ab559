package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// Run is the CLI entrypoint used by cmd/parley.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	envFile := fs.String("env-file", "", "load environment variables from this file before reading config")
	addr := fs.String("addr", "", "listen address (overrides PARLEY_HTTP_ADDR)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides PARLEY_LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", *envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		// A local .env is a dev convenience; ignore load errors for it.
		_ = godotenv.Load()
	}

	cfg := LoadConfig()
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := NewLogger(cfg.LogLevel)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
