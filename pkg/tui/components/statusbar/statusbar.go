// Package statusbar draws the bottom line of the chat screen: a spinner and
// the engine status on the left, agent and chat on the right.
package statusbar

import (
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/tui/styles"
)

type StatusBar struct {
	width   int
	theme   styles.Theme
	spinner spinner.Model
	status  session.Status
	busy    bool
	right   string
}

func New(theme styles.Theme) StatusBar {
	s := StatusBar{theme: theme}
	s.spinner = spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Accent))
	return s
}

func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

func (s *StatusBar) SetTheme(theme styles.Theme) {
	s.theme = theme
	s.spinner.Style = theme.Accent
}

func (s *StatusBar) SetStatus(status session.Status) {
	s.status = status
}

// SetRight sets the text shown on the right edge.
func (s *StatusBar) SetRight(text string) {
	s.right = text
}

// SetBusy shows or hides the spinner. Turning it on returns the command
// that starts the animation.
func (s *StatusBar) SetBusy(busy bool) tea.Cmd {
	was := s.busy
	s.busy = busy
	if busy && !was {
		return s.spinner.Tick
	}
	return nil
}

func (s *StatusBar) Busy() bool {
	return s.busy
}

// Update advances the spinner. Ticks arriving while idle are dropped, which
// stops the animation loop.
func (s StatusBar) Update(msg tea.Msg) (StatusBar, tea.Cmd) {
	if _, ok := msg.(spinner.TickMsg); !ok || !s.busy {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

func (s StatusBar) View() string {
	var left string
	if s.busy {
		left = s.spinner.View() + " "
	}
	switch {
	case s.status.Error:
		left += s.theme.Error.Render(s.status.Text)
	default:
		left += s.theme.Secondary.Render(s.status.Text)
	}

	right := s.theme.Muted.Render(s.right)
	rightW := lipgloss.Width(right)
	avail := s.width - 2

	if rightW+1 > avail {
		return s.theme.StatusBar.Render(ansi.Truncate(left, max(avail, 0), "…"))
	}
	left = ansi.Truncate(left, avail-rightW-1, "…")
	gap := max(avail-lipgloss.Width(left)-rightW, 1)
	return s.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}
