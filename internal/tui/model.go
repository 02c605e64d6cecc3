// Package tui is the interactive live-search terminal UI.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/livefind/internal/iconcache"
	"github.com/wesm/livefind/internal/livesearch"
)

// Searcher accepts search submissions. *livesearch.Coordinator implements
// it; results come back on the event channel given to New.
type Searcher interface {
	Submit(text string, opts livesearch.Options) uint64
}

// Options configures a Model.
type Options struct {
	Version string
	// Search holds the initial toggle state.
	Search livesearch.Options
	// Query is submitted immediately when non-empty.
	Query string
	Icons *iconcache.Cache
}

// spinnerFrames are the Braille dot animation frames for the busy spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// flashDuration is how long flash messages are displayed.
const flashDuration = 2 * time.Second

// Title bar, input line, separator and footer.
const chromeLines = 4

// Model is the bubbletea model for the live-search screen.
type Model struct {
	searcher Searcher
	events   <-chan livesearch.Event
	icons    *iconcache.Cache
	version  string

	input textinput.Model
	opts  livesearch.Options

	// submitted is the cookie of the newest submission, shown the cookie
	// of the newest publication received. The search is busy while
	// submitted > shown.
	submitted uint64
	shown     uint64
	results   *livesearch.ResultSet
	err       error // last query failure; results stay on screen

	cursor       int
	scrollOffset int
	pageSize     int
	width        int
	height       int

	spinnerFrame  int
	spinnerActive bool

	flashMessage   string
	flashExpiresAt time.Time

	chosen   *livesearch.ResultRecord
	quitting bool
}

// New creates a model that submits to s and reads publications from
// events.
func New(s Searcher, events <-chan livesearch.Event, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "type to search"
	ti.Prompt = "› "
	ti.CharLimit = 256
	ti.Width = 50
	ti.Focus()

	icons := opts.Icons
	if icons == nil {
		icons = iconcache.New(iconcache.DefaultSize)
	}

	m := Model{
		searcher: s,
		events:   events,
		icons:    icons,
		version:  opts.Version,
		input:    ti,
		opts:     opts.Search,
		pageSize: 20,
	}
	if opts.Query != "" {
		m.input.SetValue(opts.Query)
		m.submitted = s.Submit(opts.Query, m.opts)
		m.spinnerActive = true
	}
	return m
}

type eventMsg struct{ ev livesearch.Event }

type eventsClosedMsg struct{}

type spinnerTickMsg struct{}

type flashClearMsg struct{}

// waitForEvent delivers the next publication as a tea.Msg.
func waitForEvent(events <-chan livesearch.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner returns a spinner tick unless one is already running.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForEvent(m.events)}
	if m.spinnerActive {
		cmds = append(cmds, spinnerTick())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		m.pageSize = max(m.height-chromeLines, 1)
		m.input.Width = max(m.width/2, 10)
		m.ensureCursorVisible()
		return m, nil

	case eventMsg:
		m.handleEvent(msg.ev)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case spinnerTickMsg:
		if !m.busy() {
			m.spinnerActive = false
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()

	case flashClearMsg:
		if time.Now().After(m.flashExpiresAt) {
			m.flashMessage = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleEvent applies one publication. Older publications than the one on
// screen are ignored.
func (m *Model) handleEvent(ev livesearch.Event) {
	if ev.Cookie < m.shown {
		return
	}
	m.shown = ev.Cookie
	switch ev.Kind {
	case livesearch.EventResults:
		m.results = ev.Results
		m.err = nil
		m.cursor, m.scrollOffset = 0, 0
	case livesearch.EventCleared:
		m.results = nil
		m.err = nil
		m.cursor, m.scrollOffset = 0, 0
	case livesearch.EventFailed:
		m.err = ev.Err
	}
}

// submit sends the current input and toggles to the searcher.
func (m *Model) submit() tea.Cmd {
	m.submitted = m.searcher.Submit(m.input.Value(), m.opts)
	return m.startSpinner()
}

func (m Model) busy() bool {
	return m.submitted > m.shown
}

func (m Model) showFlash(message string) (tea.Model, tea.Cmd) {
	m.flashMessage = message
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return m, tea.Tick(flashDuration, func(time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

// Selected returns the record under the cursor.
func (m Model) Selected() (livesearch.ResultRecord, bool) {
	if m.results == nil || m.cursor < 0 || m.cursor >= len(m.results.Records) {
		return livesearch.ResultRecord{}, false
	}
	return m.results.Records[m.cursor], true
}

// Chosen returns the record picked with Enter before the program quit.
func (m Model) Chosen() (livesearch.ResultRecord, bool) {
	if m.chosen == nil {
		return livesearch.ResultRecord{}, false
	}
	return *m.chosen, true
}

// SearchOptions returns the current toggle state.
func (m Model) SearchOptions() livesearch.Options {
	return m.opts
}

func (m *Model) ensureCursorVisible() {
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	} else if m.cursor >= m.scrollOffset+m.pageSize {
		m.scrollOffset = m.cursor - m.pageSize + 1
	}
	m.scrollOffset = max(m.scrollOffset, 0)
}
