// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/affiliation-engine/internal/dataset"
	"github.com/pdiddy/affiliation-engine/internal/merge"
	"github.com/pdiddy/affiliation-engine/internal/registry"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [domains...]",
	Short: "Find researchers by e-mail domain and fetch their affiliations",
	Long: `Search queries the ORCID registry for researchers whose e-mail addresses
belong to any of the given domains, fetches each matching record, and
flattens its employment history into affiliation rows.

Failed records are skipped and reported; a failed search request ends the
run early and keeps the rows gathered so far. Use --merge-with to reconcile
the results with an existing table before writing --out.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSlice("domain", nil, "e-mail domain to search (repeatable or comma-separated)")
	searchCmd.Flags().Int("max-results", 200, "maximum identifiers to fetch per query")
	searchCmd.Flags().String("out", "", "write rows to a .csv, .xlsx, .db, .json or .yaml file")
	searchCmd.Flags().String("report", "", "write a YAML run report")
	searchCmd.Flags().String("merge-with", "", "merge results into this existing table before writing --out")
	searchCmd.Flags().Bool("json", false, "print rows as JSON instead of the run summary")
	searchCmd.Flags().String("base-url", "", "registry API root")
	searchCmd.Flags().String("mode", "", "search endpoint: expanded or search")
	searchCmd.Flags().Bool("per-domain", false, "issue one query per domain")
	searchCmd.Flags().Duration("record-delay", 0, "pause between record fetches (default 100ms)")
	searchCmd.Flags().Duration("overall-timeout", 0, "bound the whole search (0 = none)")
	searchCmd.Flags().Bool("dedup-email", false, "include e-mail addresses in the merge dedup key")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	domains, _ := cmd.Flags().GetStringSlice("domain")
	domains = append(domains, args...)
	maxResults, _ := cmd.Flags().GetInt("max-results")
	outPath, _ := cmd.Flags().GetString("out")
	reportPath, _ := cmd.Flags().GetString("report")
	mergeWith, _ := cmd.Flags().GetString("merge-with")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Progress lines would corrupt JSON on stdout.
	var progress io.Writer = os.Stdout
	if jsonOutput {
		progress = os.Stderr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := registry.NewClient(cfg.Registry,
		registry.WithLogger(logger),
		registry.WithProgress(progress),
	)
	rows, tel, err := client.SearchByDomains(ctx, domains, maxResults)
	if err != nil {
		return err
	}
	fmt.Fprintln(progress, registry.Status(tel))

	report := registry.NewReport(domains, maxResults, cfg.Registry, rows, tel)
	if reportPath != "" {
		if err := registry.WriteReport(reportPath, report); err != nil {
			return err
		}
		fmt.Fprintf(progress, "Report written to %s\n", reportPath)
	}

	if mergeWith != "" {
		existing, err := dataset.ReadTable(ctx, mergeWith)
		if err != nil {
			return err
		}
		res, err := merge.Merge(rows, existing, cfg.Merge)
		if err != nil {
			return err
		}
		fmt.Fprintf(progress, "Merged %d new and %d existing rows into %d (%d duplicates removed)\n",
			len(rows), len(existing), len(res.Rows), res.DuplicatesRemoved)
		rows = res.Rows
	}

	if outPath != "" {
		if err := writeSearchOutput(ctx, outPath, rows, report); err != nil {
			return err
		}
		fmt.Fprintf(progress, "Wrote %d rows to %s\n", len(rows), outPath)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	registry.FormatTelemetry(tel, os.Stdout)
	return nil
}

// writeSearchOutput writes rows to path. A SQLite dataset also keeps the
// run report alongside the rows.
func writeSearchOutput(ctx context.Context, path string, rows []types.AffiliationRecord, report registry.Report) error {
	kind, err := dataset.KindOf(path)
	if err != nil {
		return err
	}
	if kind != dataset.KindSQLite {
		return dataset.WriteTable(ctx, path, rows)
	}

	store, err := dataset.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, rows); err != nil {
		return err
	}
	return store.SaveRun(ctx, report)
}
