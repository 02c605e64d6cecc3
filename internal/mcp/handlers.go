package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/livesearch"
)

const maxLimit = 1000

type handlers struct {
	newQuery func(opts livesearch.Options) *livesearch.Interactive
	defaults livesearch.Options
	stats    StatsSource
}

func newHandlers(b backend.Backend, builder livesearch.QueryBuilder, cfg livesearch.Config, defaults livesearch.Options, st StatsSource) *handlers {
	// A tool call is a single submission: no keystrokes to wait out and no
	// later query to narrow.
	cfg.Debounce = -1
	cfg.NoReuse = true
	return &handlers{
		newQuery: func(opts livesearch.Options) *livesearch.Interactive {
			return livesearch.NewInteractive(b, builder, opts, cfg, nil)
		},
		defaults: defaults,
		stats:    st,
	}
}

// searchResponse is the JSON body of a search_index result.
type searchResponse struct {
	Query     string                    `json:"query"`
	Options   livesearch.Options        `json:"options"`
	Count     int                       `json:"count"`
	Truncated bool                      `json:"truncated"`
	Results   []livesearch.ResultRecord `json:"results"`
}

func (h *handlers) searchIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	text, _ := args["query"].(string)
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	opts := h.defaults
	opts.ContentSearch = boolArg(args, "content_search", opts.ContentSearch)
	opts.MailSearch = boolArg(args, "mail_search", opts.MailSearch)
	opts.AllUsersSearch = boolArg(args, "all_users_search", opts.AllUsersSearch)
	limit := limitArg(args, "limit", 20)

	q := h.newQuery(opts)
	defer q.Close()

	if err := q.Execute(ctx, text); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return mcp.NewToolResultError("search cancelled"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resp := searchResponse{Query: text, Options: opts, Results: []livesearch.ResultRecord{}}
	if rs := q.Results(); rs != nil {
		resp.Count = rs.Len()
		resp.Truncated = rs.Truncated
		records := rs.Records
		if len(records) > limit {
			records = records[:limit]
			resp.Truncated = true
		}
		resp.Results = append(resp.Results, records...)
	}
	return jsonResult(resp)
}

func (h *handlers) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.stats == nil {
		return mcp.NewToolResultError("index statistics not available"), nil
	}
	stats, err := h.stats.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	return jsonResult(stats)
}

// boolArg returns args[key] when it is a boolean, otherwise def.
func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
