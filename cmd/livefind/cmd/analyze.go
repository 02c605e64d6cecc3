package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/analysis"
)

var analyzeToggles toggleFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Report per-type property coverage for a search scope",
	Long: `Run one search synchronously, fetch every matching row, and report how
many items of each type matched and how many of their properties are filled
in. Without text the whole scope selected by the toggles is analysed.

Examples:
  livefind analyze
  livefind analyze --mail report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := analyzeToggles.apply(cmd, searchOptions(cfg))

		ix, err := openIndexDB()
		if err != nil {
			return err
		}
		defer ix.Close()

		batch := analysis.NewBatch(ix.backend, ix.builder, ix.store, opts).WithLogger(logger)
		if err := batch.Init(cmd.Context()); err != nil {
			return err
		}
		if err := batch.Execute(cmd.Context(), strings.Join(args, " ")); err != nil {
			return err
		}
		if err := batch.Report().WriteText(os.Stdout); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeToggles.register(analyzeCmd)
}
