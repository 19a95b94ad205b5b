package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"goalkeeper/internal/domain"
	"goalkeeper/internal/goals"
)

const helpText = `commands:
  add <text>     add a goal (bare text works too)
  done <ref>     mark a goal done, or back to pending if it already is
  undo <ref>     move a completed goal back to pending
  rm <ref>       delete a goal
  ls             redraw the board
  help           show this help
  quit           leave
<ref> is a row label (p1, c2), a row number, or a goal id`

// Session is the interactive goal screen: it turns typed lines into store
// calls and redraws the board whenever the store reports a change.
type Session struct {
	Store  *goals.Store
	In     io.Reader
	Out    io.Writer
	Color  bool
	Prompt string
}

// Run reads commands until quit, EOF, or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	board := Board{Out: s.Out, Color: s.Color}
	anim := Animator{Out: s.Out, Color: s.Color}
	unsubscribe := s.Store.Subscribe(func(c domain.Change) {
		anim.Listen(c)
		board.Render(s.Store.Partition())
	})
	defer unsubscribe()

	board.Render(s.Store.Partition())
	fmt.Fprintln(s.Out, `type "help" for commands`)

	scanner := bufio.NewScanner(s.In)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Prompt != "" {
			fmt.Fprint(s.Out, s.Prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := s.Exec(scanner.Text()); quit {
			return nil
		}
	}
}

// Exec applies a single command line and reports whether the session should end.
func (s *Session) Exec(line string) (quit bool) {
	cmd, arg := splitCommand(line)
	switch cmd {
	case "":
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(s.Out, helpText)
	case "ls", "list":
		Board{Out: s.Out, Color: s.Color}.Render(s.Store.Partition())
	case "add":
		s.Store.Add(arg)
	case "done", "toggle":
		if id, ok := Resolve(s.Store.Partition(), arg); ok {
			s.Store.ToggleCompleted(id)
		}
	case "undo":
		if id, ok := Resolve(s.Store.Partition(), arg); ok {
			if g, found := s.Store.Get(id); found && g.Completed {
				s.Store.ToggleCompleted(id)
			}
		}
	case "rm", "delete", "del":
		if id, ok := Resolve(s.Store.Partition(), arg); ok {
			s.Store.Remove(id)
		}
	default:
		s.Store.Add(line)
	}
	return false
}

func splitCommand(line string) (cmd, arg string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", ""
	}
	head, rest, _ := strings.Cut(trimmed, " ")
	return strings.ToLower(head), strings.TrimSpace(rest)
}
