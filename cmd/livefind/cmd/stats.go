package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()
		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fts := "no (LIKE matching)"
		if stats.FTSEnabled {
			fts = "yes"
		}
		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		fmt.Printf("  Items:        %d\n", stats.ItemCount)
		fmt.Printf("  Files:        %d\n", stats.FileCount)
		fmt.Printf("  Folders:      %d\n", stats.FolderCount)
		fmt.Printf("  Mail:         %d\n", stats.MailCount)
		fmt.Printf("  Roots:        %d\n", stats.RootCount)
		fmt.Printf("  Reuse scopes: %d\n", stats.ScopeCount)
		fmt.Printf("  Generation:   %d\n", stats.Generation)
		fmt.Printf("  Full-text:    %s\n", fts)
		fmt.Printf("  Size:         %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
