package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

var (
	collectMaxResults  int
	collectIncludeSold bool
	collectTimeoutSecs int
	collectJSON        bool
)

var collectCmd = &cobra.Command{
	Use:   "collect <query>",
	Short: "Search all marketplaces for a comic and store validated listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := model.SearchOptions{
			MaxResults:          collectMaxResults,
			IncludeSoldListings: collectIncludeSold,
		}
		if collectTimeoutSecs > 0 {
			opts.Timeout = time.Duration(collectTimeoutSecs) * time.Second
		}

		result, err := env.Orchestrator.Search(ctx, args[0], opts)
		if err != nil {
			return err
		}

		if collectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printSearchResult(result)
		zap.L().Info("collection complete",
			zap.String("query", result.Query),
			zap.Int("listings", result.TotalListings),
			zap.Bool("from_cache", result.FromCache),
			zap.Duration("elapsed", result.Elapsed),
		)
		return nil
	},
}

func printSearchResult(result *model.SearchResult) {
	fmt.Printf("Query: %s\n", result.Query)
	if result.FromCache {
		fmt.Println("(served from cache)")
	}
	if result.Error != "" {
		fmt.Printf("Warning: %s\n", result.Error)
	}

	names := make([]string, 0, len(result.Sources))
	for mkt := range result.Sources {
		names = append(names, string(mkt))
	}
	sort.Strings(names)

	fmt.Println("\nSources:")
	for _, name := range names {
		out := result.Sources[model.Marketplace(name)]
		line := fmt.Sprintf("  %-14s %-22s listings=%-4d attempts=%d", name, out.Status, out.Listings, out.Attempts)
		if out.Error != "" {
			line += "  error: " + out.Error
		}
		fmt.Println(line)
	}

	fmt.Printf("\nListings: %d valid, %d blocked, %d invalid\n", result.TotalListings, result.Blocked, result.Invalid)
	for i, l := range result.Listings {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(result.Listings)-10)
			break
		}
		fmt.Printf("  %-12s $%-10.2f conf=%.2f  %s\n", l.Marketplace, float64(l.PriceCents)/100, l.Confidence, l.Title)
	}
}

func init() {
	collectCmd.Flags().IntVar(&collectMaxResults, "max-results", 0, "max listings per source (default from config)")
	collectCmd.Flags().BoolVar(&collectIncludeSold, "include-sold", false, "include sold/completed listings")
	collectCmd.Flags().IntVar(&collectTimeoutSecs, "timeout", 0, "overall search timeout in seconds")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "emit the full result as JSON")
	rootCmd.AddCommand(collectCmd)
}
