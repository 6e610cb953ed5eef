// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/affiliation-engine/internal/dataset"
	"github.com/pdiddy/affiliation-engine/internal/metrics"
	"github.com/pdiddy/affiliation-engine/internal/registry"
	"github.com/pdiddy/affiliation-engine/internal/server"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an affiliation table over HTTP",
	Long: `Serve loads a table and exposes it through a JSON API: filtered rows,
facets, summary statistics, CSV and XLSX export, and registry searches whose
results can be merged into the served table and written back to --data.

Prometheus metrics are served at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("data", "", "table to serve and save merged searches into")
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("base-url", "", "registry API root")
	serveCmd.Flags().String("mode", "", "search endpoint: expanded or search")
	serveCmd.Flags().Bool("per-domain", false, "issue one query per domain")
	serveCmd.Flags().Duration("overall-timeout", 0, "bound each search (0 = none)")
	serveCmd.Flags().Bool("dedup-email", false, "include e-mail addresses in the merge dedup key")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	dataPath, _ := cmd.Flags().GetString("data")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := loadServed(ctx, dataPath)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", "path", dataPath, "rows", len(rows))

	m := metrics.New()
	client := registry.NewClient(cfg.Registry,
		registry.WithLogger(logger),
		registry.WithMetrics(m),
	)
	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(m)}
	if dataPath != "" {
		opts = append(opts, server.WithPersist(func(ctx context.Context, rows []types.AffiliationRecord) error {
			return dataset.WriteTable(ctx, dataPath, rows)
		}))
	}
	srv := server.New(client, rows, cfg.Merge, opts...)

	hs := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", hs.Addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// loadServed reads the table at path. A missing file starts an empty
// dataset that the first merged search creates.
func loadServed(ctx context.Context, path string) ([]types.AffiliationRecord, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := dataset.KindOf(path); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return dataset.ReadTable(ctx, path)
}
