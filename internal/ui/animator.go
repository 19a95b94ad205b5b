package ui

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/text"

	"goalkeeper/internal/domain"
)

// Animator prints one transition line per change notification.
type Animator struct {
	Out   io.Writer
	Color bool
}

func (a Animator) Listen(c domain.Change) {
	fmt.Fprintln(a.Out, a.Line(c))
}

func (a Animator) Line(c domain.Change) string {
	var mark string
	var color text.Color
	switch {
	case c.Kind == domain.ChangeAdded:
		mark, color = "+", text.FgGreen
	case c.Kind == domain.ChangeRemoved:
		mark, color = "-", text.FgRed
	case c.Kind == domain.ChangeToggled && c.Goal.Completed:
		mark, color = "✓", text.FgCyan
	default:
		mark, color = "↺", text.FgYellow
	}
	line := fmt.Sprintf("%s %s", mark, c.Goal.Text)
	if a.Color {
		return color.Sprint(line)
	}
	return line
}
