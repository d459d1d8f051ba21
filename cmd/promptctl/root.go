package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"promptmaster-nano/internal/config"
)

type rootOptions struct {
	user     string
	dbDriver string
	dbDSN    string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Reverse-engineer Nano Banana / Sora 2 prompts from media and manage history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.user, "user", "cli", "history owner; created as a guest on first use")
	root.PersistentFlags().StringVar(&opts.dbDriver, "db-driver", "", "overrides DB_DRIVER (sqlite|postgres)")
	root.PersistentFlags().StringVar(&opts.dbDSN, "db-dsn", "", "overrides DB_DSN")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(newAnalyzeCmd(opts), newHistoryCmd(opts))
	return root
}

func (o *rootOptions) apply(cfg config.Config) config.Config {
	if o.dbDriver != "" {
		cfg.DBDriver = o.dbDriver
	}
	if o.dbDSN != "" {
		cfg.DBDSN = o.dbDSN
	}
	return cfg
}

func (o *rootOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
