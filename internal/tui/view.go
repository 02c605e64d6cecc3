package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wesm/livefind/internal/livesearch"
)

// Monochrome theme, adaptive for light and dark terminals.
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}
	fgDim    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})

	statsStyle = lipgloss.NewStyle().
			Foreground(fgDim).
			Background(bgBase)

	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	toggleOnStyle = lipgloss.NewStyle().
			Bold(true).
			Reverse(true)

	toggleOffStyle = lipgloss.NewStyle().
			Foreground(fgDim)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	pathStyle = lipgloss.NewStyle().
			Foreground(fgDim)

	footerStyle = lipgloss.NewStyle().
			Foreground(fgDim).
			Background(bgBase)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")).
			Background(bgBase)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#e8d44d")).
			Bold(true)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	return strings.Join([]string{
		m.titleView(),
		m.inputView(),
		separatorStyle.Render(strings.Repeat("─", m.width)),
		m.resultsView(),
		m.footerView(),
	}, "\n")
}

func (m Model) titleView() string {
	title := " livefind"
	if m.version != "" {
		title += " " + m.version
	}

	var status string
	switch {
	case m.busy():
		status = spinnerStyle.Render(spinnerFrames[m.spinnerFrame]) + statsStyle.Render(" searching ")
	case m.results != nil:
		status = fmt.Sprintf("%s results ", formatCount(m.results.Len()))
		if m.results.Truncated {
			status = fmt.Sprintf("first %s results ", formatCount(m.results.Len()))
		}
		status = statsStyle.Render(status)
	}

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(status), 0)
	return titleBarStyle.Render(title+strings.Repeat(" ", gap)) + status
}

func (m Model) inputView() string {
	toggles := strings.Join([]string{
		toggleView("content", m.opts.ContentSearch),
		toggleView("mail", m.opts.MailSearch),
		toggleView("all users", m.opts.AllUsersSearch),
	}, " ")
	input := m.input.View()
	gap := max(m.width-lipgloss.Width(input)-lipgloss.Width(toggles)-1, 1)
	return padRight(input+strings.Repeat(" ", gap)+toggles, m.width)
}

func toggleView(label string, on bool) string {
	if on {
		return toggleOnStyle.Render(" " + label + " ")
	}
	return toggleOffStyle.Render(" " + label + " ")
}

func (m Model) resultsView() string {
	var lines []string
	if m.err != nil {
		lines = append(lines, errorStyle.Render(padRight(" "+truncateRunes("Error: "+m.err.Error(), m.width-1), m.width)))
	}

	switch {
	case m.results == nil && m.input.Value() == "":
		lines = append(lines, statsStyle.Render(padRight(" Start typing to search files and mail.", m.width)))
	case m.results != nil && m.results.Len() == 0 && !m.busy():
		lines = append(lines, statsStyle.Render(padRight(" No matches.", m.width)))
	case m.results != nil:
		end := min(m.scrollOffset+m.pageSize-len(lines), m.results.Len())
		for i := m.scrollOffset; i < end; i++ {
			lines = append(lines, m.resultRow(i, m.results.Records[i]))
		}
	}

	for len(lines) < m.pageSize {
		lines = append(lines, normalRowStyle.Render(strings.Repeat(" ", m.width)))
	}
	return strings.Join(lines[:m.pageSize], "\n")
}

// resultRow renders one record: icon, highlighted name and location.
func (m Model) resultRow(i int, rec livesearch.ResultRecord) string {
	style := normalRowStyle
	if i%2 == 1 {
		style = altRowStyle
	}
	if i == m.cursor {
		style = cursorRowStyle
	}

	icon := m.icons.For(rec.IsFolder, rec.IsMail, rec.Extension)
	glyph := lipgloss.NewStyle().Foreground(lipgloss.Color(icon.Color)).Render(icon.Glyph)

	nameWidth := max(m.width*2/5, 12)
	name := truncateRunes(rec.DisplayName, nameWidth)
	name = padRight(highlightTerms(name, m.input.Value()), nameWidth)

	locWidth := max(m.width-nameWidth-5, 0)
	loc := pathStyle.Render(truncateMiddle(rec.LaunchTarget, locWidth))

	return style.Render(padRight(" "+glyph+" "+name+"  "+loc, m.width))
}

func (m Model) footerView() string {
	if m.flashMessage != "" {
		return flashStyle.Render(padRight(" "+m.flashMessage, m.width))
	}

	keys := []string{"↑/↓", "Enter pick", "Esc clear", "alt+c content", "alt+m mail", "alt+a users"}
	left := " " + strings.Join(keys, " │ ")

	var pos string
	if n := m.results.Len(); n > 0 {
		pos = fmt.Sprintf(" %d/%d ", m.cursor+1, n)
	}
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(pos), 0)
	return footerStyle.Render(padRight(left+strings.Repeat(" ", gap)+pos, m.width))
}
