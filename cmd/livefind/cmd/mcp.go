package cmd

import (
	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/livefind/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets an MCP client search your index with the search_index and
get_stats tools.

Add to the client's config:
  {
    "mcpServers": {
      "livefind": {
        "command": "livefind",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ccfg, err := coordinatorConfig(cfg)
		if err != nil {
			return err
		}

		ix, err := openIndexDB()
		if err != nil {
			return err
		}
		defer ix.Close()

		return mcpserver.Serve(cmd.Context(), ix.backend, ix.builder, ccfg, searchOptions(cfg), ix.store)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
