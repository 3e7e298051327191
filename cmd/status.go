package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/pricefeed-cli/internal/monitoring"
)

var (
	statusHours  int
	statusJSON   bool
	statusNotify bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health: run outcomes, circuit states, DLQ depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mc := monitoring.NewCollector(env.Store, env.Breakers, env.ErrorLog)
		snap, err := mc.Collect(ctx, statusHours)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
		} else {
			printSnapshot(snap)
		}

		if statusNotify {
			alerter := monitoring.NewAlerter(cfg.Alerts)
			alerts := alerter.Evaluate(snap)
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("alert evaluation complete",
				zap.Int("triggered", len(alerts)),
				zap.Int("sent", sent),
			)
		}
		return nil
	},
}

func printSnapshot(snap *monitoring.Snapshot) {
	fmt.Printf("Collection runs (last %dh): %d total, %d complete, %d partial, %d failed (%.0f%% fail rate)\n",
		snap.LookbackHours, snap.RunsTotal, snap.RunsComplete, snap.RunsPartial, snap.RunsFailed,
		snap.RunFailRate*100)

	if len(snap.OpenCircuits) > 0 {
		fmt.Printf("Open circuits: %v\n", snap.OpenCircuits)
	} else {
		fmt.Println("Open circuits: none")
	}

	fmt.Printf("Dead letter queue: %d entries\n", snap.DLQDepth)

	if len(snap.ErrorsBySource) > 0 {
		fmt.Println("Recent errors by source:")
		names := make([]string, 0, len(snap.ErrorsBySource))
		for name := range snap.ErrorsBySource {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-14s %d\n", name, snap.ErrorsBySource[name])
		}
	}
}

func init() {
	statusCmd.Flags().IntVar(&statusHours, "hours", 24, "lookback window in hours")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the snapshot as JSON")
	statusCmd.Flags().BoolVar(&statusNotify, "notify", false, "evaluate alert rules and send webhook alerts")
	rootCmd.AddCommand(statusCmd)
}
