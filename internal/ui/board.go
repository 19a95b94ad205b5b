// Package ui renders the goal store in a terminal and drives it from typed
// commands.
package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"goalkeeper/internal/domain"
)

// Board draws a partition as a pending table followed by a completed table.
type Board struct {
	Out   io.Writer
	Color bool
}

func (b Board) Render(p domain.Partition) {
	fmt.Fprintln(b.Out, b.section("Pending", "p", p.Pending, false))
	fmt.Fprintln(b.Out, b.section("Completed", "c", p.Completed, true))
}

func (b Board) section(title, prefix string, items []domain.Goal, done bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s (%d)", title, len(items)))
	tw.AppendHeader(table.Row{"#", "Goal", "ID"})
	if len(items) == 0 {
		tw.AppendRow(table.Row{"", "nothing here", ""})
	}
	for i, g := range items {
		goalText := g.Text
		if done && b.Color {
			goalText = text.Colors{text.CrossedOut, text.Faint}.Sprint(goalText)
		}
		tw.AppendRow(table.Row{prefix + strconv.Itoa(i+1), goalText, g.ID})
	}
	return tw.Render()
}

// Resolve maps a board reference to a goal id. A reference is a goal id,
// a row label such as p2 or c1, or a plain number counting pending rows
// first and completed rows after them.
func Resolve(p domain.Partition, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	for _, side := range [][]domain.Goal{p.Pending, p.Completed} {
		for _, g := range side {
			if g.ID == ref {
				return g.ID, true
			}
		}
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "p"):
		return pick(p.Pending, lower[1:])
	case strings.HasPrefix(lower, "c"):
		return pick(p.Completed, lower[1:])
	}
	all := append(append([]domain.Goal{}, p.Pending...), p.Completed...)
	return pick(all, lower)
}

func pick(items []domain.Goal, num string) (string, bool) {
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > len(items) {
		return "", false
	}
	return items[n-1].ID, true
}
