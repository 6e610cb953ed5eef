// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/affiliation-engine/internal/dataset"
	"github.com/pdiddy/affiliation-engine/internal/merge"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Reconcile two affiliation tables into one",
	Long: `Merge combines a new table (typically registry search output) with an
existing one (typically a spreadsheet upload). Existing rows come first and
win over duplicates; rows are duplicates when they share identifier, role,
start year and end year (and e-mail addresses with --dedup-email).`,
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("new", "", "table with newly fetched rows")
	mergeCmd.Flags().String("existing", "", "table with previously collected rows")
	mergeCmd.Flags().String("out", "", "destination table")
	mergeCmd.Flags().Bool("dedup-email", false, "include e-mail addresses in the dedup key")
	_ = mergeCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newPath, _ := cmd.Flags().GetString("new")
	existingPath, _ := cmd.Flags().GetString("existing")
	outPath, _ := cmd.Flags().GetString("out")
	if newPath == "" && existingPath == "" {
		return fmt.Errorf("provide --new, --existing, or both")
	}

	ctx := context.Background()
	newRows, err := readOptionalTable(ctx, newPath)
	if err != nil {
		return err
	}
	existing, err := readOptionalTable(ctx, existingPath)
	if err != nil {
		return err
	}

	res, err := merge.Merge(newRows, existing, cfg.Merge)
	if err != nil {
		return err
	}
	if err := dataset.WriteTable(ctx, outPath, res.Rows); err != nil {
		return err
	}

	fmt.Printf("Merged %d new and %d existing rows into %d (%d duplicates removed)\n",
		len(newRows), len(existing), len(res.Rows), res.DuplicatesRemoved)
	fmt.Printf("Wrote %s\n", outPath)
	return nil
}

func readOptionalTable(ctx context.Context, path string) ([]types.AffiliationRecord, error) {
	if path == "" {
		return nil, nil
	}
	return dataset.ReadTable(ctx, path)
}
