package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/indexer"
	"github.com/wesm/livefind/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index [root...]",
	Short: "Crawl folders and mail into the index",
	Long: `Crawl the configured roots ([index] roots and mail in config.toml), or
the roots given as arguments, and write folders, files and mail messages into
the index. Items that disappeared since the previous crawl of a root are
removed.

Examples:
  livefind index
  livefind index ~/Documents ~/Projects`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := indexerOptions(cfg, args)
		if len(opts.Roots) == 0 {
			return errors.New("no roots to index\n\nAdd roots to config.toml:\n\n  [index]\n  roots = [\"~/Documents\"]")
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		summary, runErr := indexer.New(s, opts).Run(cmd.Context())
		if summary != nil {
			printIndexSummary(summary)
		}
		if runErr != nil {
			return fmt.Errorf("index: %w", runErr)
		}
		return nil
	},
}

func printIndexSummary(summary *indexer.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOT\tFOLDERS\tFILES\tMAIL\tSKIPPED\tREMOVED\tSTATUS")
	for _, r := range summary.Roots {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Root, r.Folders, r.Files, r.Mail, r.Skipped, r.Removed, status)
	}
	w.Flush()
	fmt.Printf("\nIndexed %d items in %s\n", summary.Items(), summary.Duration.Round(time.Millisecond))
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
