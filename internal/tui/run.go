package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

type Options struct {
	Events <-chan progress.Event
	// Technologies seeds the table so pending checks show before they start.
	Technologies []string
}

// Available reports whether stdout is an interactive terminal.
func Available() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func Run(opts Options) error {
	if opts.Events == nil {
		return fmt.Errorf("tui events channel is required")
	}

	m := newModel(opts.Events, opts.Technologies)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
