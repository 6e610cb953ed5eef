// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/affiliation-engine/internal/analysis"
	"github.com/pdiddy/affiliation-engine/internal/dataset"
	"github.com/pdiddy/affiliation-engine/internal/registry"
	"github.com/pdiddy/affiliation-engine/internal/tabular"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize an affiliation table",
	Long: `Stats loads a table, applies the optional filters, and prints summary
statistics: totals, active affiliations, durations, and the role, department,
title, source and start-year distributions.

Rows with a malformed ORCID iD or implausible years are reported as warnings.
With --runs, a SQLite dataset's saved search runs are listed instead.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().String("in", "", "table to summarize")
	statsCmd.Flags().StringSlice("role", nil, "keep only these relation roles")
	statsCmd.Flags().StringSlice("department", nil, "keep only these departments")
	statsCmd.Flags().StringSlice("source", nil, "keep only these sources")
	statsCmd.Flags().Int("from", 0, "earliest start year")
	statsCmd.Flags().Int("to", 0, "latest start year")
	statsCmd.Flags().Bool("json", false, "output the summary as JSON")
	statsCmd.Flags().Bool("runs", false, "list saved search runs of a SQLite dataset")
	_ = statsCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := newLogger(cmd)
	inPath, _ := cmd.Flags().GetString("in")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if listRuns, _ := cmd.Flags().GetBool("runs"); listRuns {
		return printRuns(ctx, inPath, jsonOutput)
	}

	rows, err := dataset.ReadTable(ctx, inPath)
	if err != nil {
		return err
	}
	for _, issue := range tabular.Validate(rows, time.Now().Year()) {
		logger.Warn("suspicious row", "row", issue.Row, "identifier", issue.Identifier, "problem", issue.Problem)
	}

	summary := analysis.Summarize(filterFromFlags(cmd).Apply(rows))
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	analysis.Format(summary, os.Stdout)
	return nil
}

func filterFromFlags(cmd *cobra.Command) analysis.Filter {
	roles, _ := cmd.Flags().GetStringSlice("role")
	depts, _ := cmd.Flags().GetStringSlice("department")
	sources, _ := cmd.Flags().GetStringSlice("source")

	f := analysis.Filter{Roles: roles, Departments: depts, Sources: sources}
	if cmd.Flags().Changed("from") {
		from, _ := cmd.Flags().GetInt("from")
		f.YearFrom = &from
	}
	if cmd.Flags().Changed("to") {
		to, _ := cmd.Flags().GetInt("to")
		f.YearTo = &to
	}
	return f
}

func printRuns(ctx context.Context, path string, jsonOutput bool) error {
	if kind, err := dataset.KindOf(path); err != nil || kind != dataset.KindSQLite {
		return fmt.Errorf("--runs needs a SQLite dataset, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	store, err := dataset.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No saved runs.")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-6s  %-6s  %s\n", "Run", "Timestamp", "Rows", "Errors", "Domains")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-6d  %-6d  %s\n",
			r.RunID, r.Timestamp.Format(time.RFC3339), r.Rows, r.Telemetry.Errors, strings.Join(r.Domains, ","))
		fmt.Printf("    %s\n", registry.Status(&r.Telemetry))
	}
	fmt.Printf("\n%d runs\n", len(runs))
	return nil
}
