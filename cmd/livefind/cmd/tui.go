package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/iconcache"
	"github.com/wesm/livefind/internal/livesearch"
	"github.com/wesm/livefind/internal/tui"
)

var tuiToggles toggleFlags

// tuiEventBuffer holds publications the UI has not drawn yet; older ones
// are dropped when it fills.
const tuiEventBuffer = 32

var tuiCmd = &cobra.Command{
	Use:   "tui [text]",
	Short: "Search interactively as you type",
	Long: `Open the live-search terminal UI. Results update as you type; each
keystroke narrows the previous results instead of rescanning the index.

Keys:
  ↑/↓, Ctrl+P/N  Move selection
  PgUp/PgDn      Page up/down
  Enter          Print the selected item's location and exit
  Alt+C          Toggle content search
  Alt+M          Toggle mail search
  Alt+A          Toggle all-users search
  Esc            Clear the search, or quit when it is empty
  Ctrl+C         Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
			return errors.New("tui needs an interactive terminal; use 'livefind search' in scripts")
		}

		ccfg, err := coordinatorConfig(cfg)
		if err != nil {
			return err
		}
		opts := tuiToggles.apply(cmd, searchOptions(cfg))

		ix, err := openIndexDB()
		if err != nil {
			return err
		}
		defer ix.Close()

		pub := livesearch.NewChannelPublisher(tuiEventBuffer)
		coord := livesearch.NewCoordinator(ix.backend, ix.builder, pub, ccfg)
		defer coord.Close()
		if err := coord.Init(cmd.Context(), opts); err != nil {
			logger.Debug("priming failed", "error", err)
		}

		model := tui.New(coord, pub.Events(), tui.Options{
			Version: versionString(),
			Search:  opts,
			Query:   strings.Join(args, " "),
			Icons:   iconcache.New(iconcache.DefaultSize),
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		if m, ok := final.(tui.Model); ok {
			if rec, ok := m.Chosen(); ok {
				fmt.Println(rec.LaunchTarget)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiToggles.register(tuiCmd)
}
