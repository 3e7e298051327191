package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/pricefeed-cli/internal/ingest"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

var (
	importFile        string
	importSheet       string
	importMarketplace string
	importDryRun      bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a historical listing export (XLSX or CSV) into the store",
	Long:  "Validates each row of an export through the full validation engine, seeding price baselines, and stores the listings that pass.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mkt := model.Marketplace(importMarketplace)
		if !mkt.Valid() {
			return eris.Errorf("unknown marketplace %q", importMarketplace)
		}

		raw, err := ingest.ReadFile(importFile, ingest.Options{SheetName: importSheet})
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Engine.BatchValidate(ctx, raw, mkt, cfg.Collect.ValidateBatchSize)

		var valid []model.NormalizedListing
		rejected := 0
		for _, res := range results {
			if res.Valid && res.Normalized != nil {
				valid = append(valid, *res.Normalized)
			} else {
				rejected++
			}
		}

		if !importDryRun && len(valid) > 0 {
			if _, err := env.Store.UpsertListings(ctx, valid); err != nil {
				return eris.Wrap(err, "store imported listings")
			}
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.String("marketplace", string(mkt)),
			zap.Int("rows", len(raw)),
			zap.Int("imported", len(valid)),
			zap.Int("rejected", rejected),
			zap.Bool("dry_run", importDryRun),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to XLSX or CSV export (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importMarketplace, "marketplace", "", "marketplace the export came from (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate without writing to the store")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("marketplace")
	rootCmd.AddCommand(importCmd)
}
