package analysis

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// TypeStats counts items and populated properties for one file type.
type TypeStats struct {
	Type       string `json:"type"`
	Items      int    `json:"items"`
	Properties int    `json:"properties"`
}

// AvgProperties is the mean number of populated properties per item.
func (s TypeStats) AvgProperties() float64 {
	if s.Items == 0 {
		return 0
	}
	return float64(s.Properties) / float64(s.Items)
}

// Report is the outcome of one batch analysis.
type Report struct {
	Text            string         `json:"text"`
	Query           string         `json:"query"`
	Columns         []string       `json:"columns"`
	Rows            int            `json:"rows"`
	UniqueItems     int            `json:"unique_items"`
	Records         int            `json:"records"`
	Skipped         int            `json:"skipped"`
	ValidProperties int            `json:"valid_properties"`
	Types           []TypeStats    `json:"types"`
	Coverage        map[string]int `json:"coverage"`
	Duration        time.Duration  `json:"duration"`
}

// AvgProperties is the mean number of populated properties per row.
func (r *Report) AvgProperties() float64 {
	if r.Rows == 0 {
		return 0
	}
	return float64(r.ValidProperties) / float64(r.Rows)
}

// WriteText writes the report as aligned plain-text tables.
func (r *Report) WriteText(out io.Writer) error {
	text := r.Text
	if text == "" {
		text = "(all items)"
	}
	fmt.Fprintf(out, "Property analysis: %s\n", text)
	fmt.Fprintf(out, "  Rows:          %d\n", r.Rows)
	fmt.Fprintf(out, "  Unique items:  %d\n", r.UniqueItems)
	fmt.Fprintf(out, "  Displayable:   %d\n", r.Records)
	if r.Skipped > 0 {
		fmt.Fprintf(out, "  Skipped rows:  %d\n", r.Skipped)
	}
	fmt.Fprintf(out, "  Avg populated: %.2f of %d properties\n", r.AvgProperties(), len(r.Columns))
	fmt.Fprintf(out, "  Duration:      %s\n\n", r.Duration.Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tITEMS\tAVG PROPERTIES")
	fmt.Fprintln(w, "────\t─────\t──────────────")
	for _, ts := range r.Types {
		fmt.Fprintf(w, "%s\t%d\t%.2f\n", ts.Type, ts.Items, ts.AvgProperties())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROPERTY\tPOPULATED\tCOVERAGE")
	fmt.Fprintln(w, "────────\t─────────\t────────")
	for _, col := range r.Columns {
		n := r.Coverage[col]
		pct := 0.0
		if r.Rows > 0 {
			pct = 100 * float64(n) / float64(r.Rows)
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", col, n, pct)
	}
	return w.Flush()
}
