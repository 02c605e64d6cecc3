package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.input.Value() == "" {
			m.quitting = true
			return m, tea.Quit
		}
		m.input.SetValue("")
		return m, m.submit()

	case "enter":
		if rec, ok := m.Selected(); ok {
			m.chosen = &rec
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case "up", "ctrl+p":
		m.moveCursor(-1)
		return m, nil
	case "down", "ctrl+n":
		m.moveCursor(1)
		return m, nil
	case "pgup":
		m.moveCursor(-m.pageSize)
		return m, nil
	case "pgdown":
		m.moveCursor(m.pageSize)
		return m, nil

	case "alt+c":
		m.opts.ContentSearch = !m.opts.ContentSearch
		return m.toggled("content search", m.opts.ContentSearch)
	case "alt+m":
		m.opts.MailSearch = !m.opts.MailSearch
		return m.toggled("mail search", m.opts.MailSearch)
	case "alt+a":
		m.opts.AllUsersSearch = !m.opts.AllUsersSearch
		return m.toggled("all users", m.opts.AllUsersSearch)
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.submit())
}

// toggled resubmits the current text after an option change.
func (m Model) toggled(name string, on bool) (tea.Model, tea.Cmd) {
	state := "off"
	if on {
		state = "on"
	}
	spin := m.submit()
	model, flash := m.showFlash(name + " " + state)
	return model, tea.Batch(spin, flash)
}

func (m *Model) moveCursor(delta int) {
	n := m.results.Len()
	if n == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.ensureCursorVisible()
}
