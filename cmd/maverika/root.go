package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maverika/maverika/internal/config"
)

type rootOptions struct {
	debug   bool
	console bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "maverika",
		Short:         "Task orchestration for company EVE workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.console, "console", false, "human-readable log output")
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newDispatchOnceCmd(opts),
	)
	return cmd
}

// setup loads configuration and builds the root logger.
func (o *rootOptions) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.Level()
	if o.debug {
		level = zerolog.DebugLevel
	}
	var logger zerolog.Logger
	if o.console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	return cfg, logger, nil
}
