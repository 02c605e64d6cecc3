package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/livesearch"
)

var (
	searchJSON    bool
	searchLimit   int
	searchToggles toggleFlags
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Run one search and print the results",
	Long: `Run a single search over the index and print the results.

Text matches the start of any word in an item's name. With --content, items
whose contents contain every word also match. Mail messages are included
with --mail.

Examples:
  livefind search quarterly rep
  livefind search --content --mail budget
  livefind search --json invoice`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if strings.TrimSpace(text) == "" {
			return errors.New("empty search text")
		}

		ccfg, err := coordinatorConfig(cfg)
		if err != nil {
			return err
		}
		ccfg.Debounce = -1
		ccfg.NoReuse = true
		if searchLimit > 0 {
			ccfg.MaxResults = searchLimit
		}
		opts := searchToggles.apply(cmd, searchOptions(cfg))

		ix, err := openIndexDB()
		if err != nil {
			return err
		}
		defer ix.Close()

		progress := isatty.IsTerminal(os.Stderr.Fd()) && !searchJSON
		if progress {
			fmt.Fprintf(os.Stderr, "Searching...")
		}

		q := livesearch.NewInteractive(ix.backend, ix.builder, opts, ccfg, nil)
		defer q.Close()
		err = q.Execute(cmd.Context(), text)
		if progress {
			fmt.Fprintf(os.Stderr, "\r            \r")
		}
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		rs := q.Results()
		if searchJSON {
			return outputSearchResultsJSON(rs)
		}
		if rs.Len() == 0 {
			fmt.Println("No results found.")
			return nil
		}
		return outputSearchResultsTable(rs)
	},
}

func outputSearchResultsTable(rs *livesearch.ResultSet) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tLOCATION")
	fmt.Fprintln(w, "────\t────\t────────")

	for _, rec := range rs.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			runewidth.Truncate(rec.DisplayName, 50, "…"),
			recordKind(rec),
			rec.LaunchTarget)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	more := ""
	if rs.Truncated {
		more = " (more available, raise --limit)"
	}
	fmt.Printf("\nShowing %d results%s\n", rs.Len(), more)
	return nil
}

func recordKind(rec livesearch.ResultRecord) string {
	switch {
	case rec.IsFolder:
		return "folder"
	case rec.IsMail:
		return "mail"
	case rec.Extension != "":
		return rec.Extension
	default:
		return rec.Kind
	}
}

func outputSearchResultsJSON(rs *livesearch.ResultSet) error {
	out := struct {
		Text      string                    `json:"text"`
		Truncated bool                      `json:"truncated"`
		Results   []livesearch.ResultRecord `json:"results"`
	}{Results: []livesearch.ResultRecord{}}
	if rs != nil {
		out.Text = rs.Text
		out.Truncated = rs.Truncated
		out.Results = append(out.Results, rs.Records...)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from search.max_results)")
	searchToggles.register(searchCmd)
}
