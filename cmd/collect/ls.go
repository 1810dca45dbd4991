package main

import (
	"context"
	"fmt"

	"edgar_facts/pkg/config"
	"edgar_facts/pkg/core/ingest"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// ==========================================
// ls - browse the archive or the source
// ==========================================

var lsCmd = &cobra.Command{
	Use:   "ls [archive-dir]",
	Short: "List an EDGAR archive directory, or the filings of the configured source",
	Long: `With an argument, lists an archive directory on the EDGAR host, e.g.
  collect ls edgar/data/320193

Without one, prints the filing ids the configured source would enumerate.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 1 {
		l := ingest.NewHTTPLoader(ingest.HTTPOptions{
			Host:          cfg.Source.Host,
			UserAgent:     cfg.Source.UserAgent,
			RatePerSecond: cfg.Source.RatePerSecond,
			Logger:        logger,
		})
		entries, err := l.ListDirectory(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "collect: list %s", args[0])
		}
		for _, e := range entries {
			name := e.Name
			if e.IsDir {
				name = colorCyan.Sprint(name + "/")
			}
			fmt.Printf("%-48s %12d  %s\n", name, e.Size, e.LastModified)
		}
		return nil
	}

	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ids, err := src.list(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	colorGreen.Printf("%d filings\n", len(ids))
	return nil
}
