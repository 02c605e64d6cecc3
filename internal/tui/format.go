package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// highlightTerms highlights every occurrence of the whitespace-separated
// words of searchText in text, case-insensitively.
func highlightTerms(text, searchText string) string {
	if searchText == "" || text == "" {
		return text
	}
	return applyHighlight(text, searchTerms(searchText))
}

// searchTerms splits search text into distinct words.
func searchTerms(searchText string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range strings.Fields(searchText) {
		lower := strings.ToLower(t)
		if !seen[lower] {
			seen[lower] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// applyHighlight wraps case-insensitive occurrences of any term with
// highlightStyle. Matching works on runes because strings.ToLower can
// change the byte length of some characters.
func applyHighlight(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}
	textRunes := []rune(text)
	lowerRunes := []rune(strings.ToLower(text))
	if len(lowerRunes) != len(textRunes) {
		return text
	}

	type interval struct{ start, end int }
	var intervals []interval
	for _, term := range terms {
		needle := []rune(strings.ToLower(term))
		n := len(needle)
		if n == 0 {
			continue
		}
		for i := 0; i <= len(lowerRunes)-n; i++ {
			if string(lowerRunes[i:i+n]) == string(needle) {
				intervals = append(intervals, interval{i, i + n})
				i += n - 1
			}
		}
	}
	if len(intervals) == 0 {
		return text
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })
	merged := []interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			last.end = max(last.end, iv.end)
		} else {
			merged = append(merged, iv)
		}
	}

	var sb strings.Builder
	prev := 0
	for _, iv := range merged {
		sb.WriteString(string(textRunes[prev:iv.start]))
		sb.WriteString(highlightStyle.Render(string(textRunes[iv.start:iv.end])))
		prev = iv.end
	}
	sb.WriteString(string(textRunes[prev:]))
	return sb.String()
}

// formatCount formats a count compactly (e.g. "1.5K").
func formatCount(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// padRight pads s with spaces to width terminal cells, truncating if it is
// wider. ANSI sequences do not count towards the width.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes fits s into maxWidth terminal cells, replacing control
// characters that would break the layout.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// truncateMiddle shortens a path by eliding its middle, keeping the start
// and the more specific end.
func truncateMiddle(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 5 {
		return truncateRunes(s, maxWidth)
	}
	keep := maxWidth - 1
	head := runewidth.Truncate(s, keep/2, "")
	tailWidth := keep - runewidth.StringWidth(head)
	runes := []rune(s)
	w, i := 0, len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > tailWidth {
			break
		}
		w += rw
		i--
	}
	return head + "…" + string(runes[i:])
}
