// Command restwalk walks a paged REST listing or drives a long-running
// operation to completion, printing items or the final result as JSON lines.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/clientrt/internal/config"
	"github.com/Sternrassler/clientrt/pkg/logging"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitOpFailed = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("restwalk", pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath string
		envFiles   []string
		overrides  config.Overrides
	)
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default .env)")
	overrides.AddFlags(flags)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if err := config.LoadDotEnv(envFiles...); err != nil {
		fmt.Fprintf(stderr, "restwalk: %v\n", err)
		return exitUsage
	}

	cfg := &config.Config{}
	if configPath != "" {
		var err error
		if cfg, err = config.Read(configPath); err != nil {
			fmt.Fprintf(stderr, "restwalk: %v\n", err)
			return exitUsage
		}
	}
	overrides.Apply(flags, cfg)
	if err := cfg.Finalize(); err != nil {
		fmt.Fprintf(stderr, "restwalk: %v\n", err)
		return exitUsage
	}
	if cfg.Listing == nil && cfg.Operation == nil {
		fmt.Fprintln(stderr, "restwalk: nothing to do; pass --list or --operation, or configure listing/operation")
		return exitUsage
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Output:  stderr,
		Service: "restwalk",
	})
	logger := logging.NewLogger("restwalk")

	r, cleanup, err := newRunner(ctx, cfg, stdout, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialise")
		return exitFailure
	}
	defer cleanup()

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, logger)
		defer shutdownServer(srv, logger)
	}

	if cfg.Listing != nil {
		n, err := r.walkListing(ctx)
		if err != nil {
			logger.Error().Err(err).Int("items", n).Msg("Listing failed")
			return exitFailure
		}
		logger.Info().Int("items", n).Msg("Listing finished")
		return exitOK
	}

	outcome, err := r.driveOperation(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Operation failed")
		return exitFailure
	}
	if outcome != nil {
		logger.Warn().Err(outcome).Msg("Operation did not succeed")
		return exitOpFailed
	}
	return exitOK
}
