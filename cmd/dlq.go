package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dlqLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and manage the dead letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed collection operations awaiting review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("dead letter queue is empty")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-14s %-10s attempts=%d  %s\n  query: %q\n  error: %s\n",
				e.ID, e.Marketplace, e.Category, e.Attempts,
				e.LastFailedAt.Format("2006-01-02 15:04:05"), e.Query, e.Error)
		}
		return nil
	},
}

var dlqRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an entry from the dead letter queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RemoveDLQ(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("dlq entry removed", zap.String("id", args[0]))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired search cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredSearches(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cache pruned", zap.Int("deleted", n))
		return nil
	},
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqLimit, "limit", 50, "max entries to list")
	dlqCmd.AddCommand(dlqListCmd, dlqRemoveCmd)
	rootCmd.AddCommand(dlqCmd, pruneCmd)
}
