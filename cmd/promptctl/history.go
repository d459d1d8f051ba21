package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"promptmaster-nano/internal/config"
	"promptmaster-nano/internal/retention"
	"promptmaster-nano/internal/store"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or prune stored prompt records",
	}
	cmd.AddCommand(newHistoryListCmd(root), newHistoryPurgeCmd(root))
	return cmd
}

func newHistoryListCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.apply(config.LoadOffline())
			db, err := store.Open(store.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer store.Close(db)

			records, err := store.NewHistoryRepository(db).List(cmd.Context(), root.user, limit)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tTARGET\tMEDIA\tPROMPT")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					time.UnixMilli(r.Timestamp).Format(time.DateTime),
					r.TargetModel,
					r.MediaType,
					shorten(r.PositivePrompt, 60),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records to show; 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newHistoryPurgeCmd(root *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete records of every user older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.apply(config.LoadOffline())
			db, err := store.Open(store.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer store.Close(db)

			task, err := retention.New(retention.Options{
				Purger: store.NewHistoryRepository(db),
				Days:   days,
				Logger: root.logger(),
			})
			if err != nil {
				return err
			}

			n, err := task.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records older than %d days\n", n, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "retention window in days")
	return cmd
}

func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
