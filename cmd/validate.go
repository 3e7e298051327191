package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

var (
	validateFile        string
	validateMarketplace string
)

var validateCmd = &cobra.Command{
	Use:          "validate",
	Short:        "Validate a single raw listing from a JSON file or stdin",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mkt := model.Marketplace(validateMarketplace)
		if !mkt.Valid() {
			return eris.Errorf("unknown marketplace %q", validateMarketplace)
		}

		var in io.Reader = os.Stdin
		if validateFile != "" {
			f, err := os.Open(validateFile)
			if err != nil {
				return eris.Wrap(err, "open listing file")
			}
			defer f.Close()
			in = f
		}

		var raw model.RawListing
		if err := json.NewDecoder(in).Decode(&raw); err != nil {
			return eris.Wrap(err, "decode listing")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Engine.Validate(raw, mkt)

		if res.Valid {
			fmt.Printf("VALID  confidence=%.2f anomaly=%.2f\n", res.Normalized.Confidence, res.Normalized.AnomalyScore)
		} else {
			fmt.Println("REJECTED")
		}
		for _, e := range res.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		if !res.Valid {
			// Returning the error keeps the deferred cleanup running
			// and still exits non-zero.
			return eris.New("listing rejected")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "path to listing JSON (default stdin)")
	validateCmd.Flags().StringVar(&validateMarketplace, "marketplace", "", "marketplace the listing came from (required)")
	_ = validateCmd.MarkFlagRequired("marketplace")
	rootCmd.AddCommand(validateCmd)
}
