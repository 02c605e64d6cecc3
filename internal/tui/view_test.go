package tui

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/wesm/livefind/internal/livesearch"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI colour output and restores the
// previous profile when the test ends.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func TestViewLayout(t *testing.T) {
	m, _ := newTestModel(t, Options{Version: "v1.2.3"})
	m = typeText(t, m, "rep")
	m = update(t, m, results(3, "report.txt", "reply.txt"))

	view := m.View()
	lines := strings.Split(view, "\n")
	if len(lines) != m.height {
		t.Fatalf("view has %d lines, want %d:\n%s", len(lines), m.height, stripANSI(view))
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w != m.width {
			t.Errorf("line %d width = %d, want %d: %q", i, w, m.width, stripANSI(line))
		}
	}

	plain := stripANSI(view)
	for _, want := range []string{"livefind v1.2.3", "2 results", "report.txt", "/home/me/reply.txt", "1/2", "alt+c content"} {
		if !strings.Contains(plain, want) {
			t.Errorf("view missing %q:\n%s", want, plain)
		}
	}
}

func TestViewStates(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	if plain := stripANSI(m.View()); !strings.Contains(plain, "Start typing") {
		t.Errorf("empty view:\n%s", plain)
	}

	m = typeText(t, m, "zz")
	if plain := stripANSI(m.View()); !strings.Contains(plain, "searching") {
		t.Errorf("busy view:\n%s", plain)
	}

	m = update(t, m, results(2))
	if plain := stripANSI(m.View()); !strings.Contains(plain, "No matches.") || !strings.Contains(plain, "0 results") {
		t.Errorf("no-match view:\n%s", plain)
	}

	var zero Model
	if got := zero.View(); got != "Loading..." {
		t.Errorf("unsized View() = %q", got)
	}
}

func TestViewTruncatedResults(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	m = typeText(t, m, "a")
	msg := results(1, "a.txt")
	msg.ev.Results.Truncated = true
	m = update(t, m, msg)
	if plain := stripANSI(m.View()); !strings.Contains(plain, "first 1 results") {
		t.Errorf("truncated view:\n%s", plain)
	}
}

func TestResultRowIcons(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	tests := []struct {
		name string
		rec  livesearch.ResultRecord
		want string
	}{
		{"folder", livesearch.ResultRecord{DisplayName: "src", LaunchTarget: "/src", IsFolder: true}, "▸"},
		{"mail", livesearch.ResultRecord{DisplayName: "Lunch", LaunchTarget: "mapi://Inbox/1", IsMail: true}, "✉"},
		{"go file", livesearch.ResultRecord{DisplayName: "main.go", LaunchTarget: "/main.go", Extension: ".go"}, "λ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := stripANSI(m.resultRow(1, tt.rec))
			if !strings.HasPrefix(row, " "+tt.want+" "+tt.rec.DisplayName) {
				t.Errorf("row = %q, want icon %q first", row, tt.want)
			}
		})
	}
}

func TestResultRowHighlightsQuery(t *testing.T) {
	forceColorProfile(t)
	m, _ := newTestModel(t, Options{})
	m = typeText(t, m, "rep")
	row := m.resultRow(0, livesearch.ResultRecord{DisplayName: "Report.txt", LaunchTarget: "/Report.txt"})
	if !strings.Contains(row, ansiStart) {
		t.Fatalf("row has no styling: %q", row)
	}
	if plain := stripANSI(row); !strings.Contains(plain, "Report.txt") {
		t.Errorf("highlight changed the text: %q", plain)
	}
}

func TestResultRowWideNames(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	rec := livesearch.ResultRecord{
		DisplayName:  strings.Repeat("日本語", 30),
		LaunchTarget: "/" + strings.Repeat("very/long/path/", 20) + "file.txt",
	}
	row := m.resultRow(0, rec)
	if w := lipgloss.Width(row); w != m.width {
		t.Errorf("row width = %d, want %d", w, m.width)
	}
	if plain := stripANSI(row); !strings.Contains(plain, "file.txt") {
		t.Errorf("row = %q", plain)
	}
}
