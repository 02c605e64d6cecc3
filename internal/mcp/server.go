package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/livesearch"
	"github.com/wesm/livefind/internal/store"
)

// Tool name constants.
const (
	ToolSearchIndex = "search_index"
	ToolGetStats    = "get_stats"
)

// StatsSource reports index statistics.
type StatsSource interface {
	GetStats() (*store.Stats, error)
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

// Serve creates an MCP server with index search tools and serves over
// stdio. It blocks until stdin is closed or the context is cancelled.
// defaults supplies the search options used when a call does not set them.
func Serve(ctx context.Context, b backend.Backend, builder livesearch.QueryBuilder, cfg livesearch.Config, defaults livesearch.Options, st StatsSource) error {
	s := server.NewMCPServer(
		"livefind",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := newHandlers(b, builder, cfg, defaults, st)

	s.AddTool(searchIndexTool(), h.searchIndex)
	s.AddTool(getStatsTool(), h.getStats)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchIndexTool() mcp.Tool {
	return mcp.NewTool(ToolSearchIndex,
		mcp.WithDescription("Search the local file and mail index. Matches display names by word prefix, and optionally file contents and mail messages. Results are ordered by relevance, then modification date."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text (e.g. 'quarterly rep')"),
		),
		mcp.WithBoolean("content_search",
			mcp.Description("Also match words inside file contents"),
		),
		mcp.WithBoolean("mail_search",
			mcp.Description("Include mail messages"),
		),
		mcp.WithBoolean("all_users_search",
			mcp.Description("Include other users' profile folders"),
		),
		withLimit("20"),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get index overview: item counts by kind, indexed roots, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
