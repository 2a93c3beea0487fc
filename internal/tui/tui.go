package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive editor and blocks until it exits. An idle
// session left open on exit is discarded.
func Run(opts Options) error {
	if opts.Client == nil || opts.Listing == nil || opts.Controller == nil {
		return errors.New("tui: client, listing and controller are required")
	}
	applyColorProfilePreference()
	applyThemePreference()

	m := newAppModel(opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	_ = opts.Controller.Cancel()
	return err
}
