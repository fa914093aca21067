package tmux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Pane represents a tmux pane
type Pane struct {
	ID      string
	Index   int
	Title   string
	Command string
	Active  bool
}

// ExactTarget returns a session target that tmux matches by full name only.
// A bare name also matches any session it is a prefix of.
func ExactTarget(session string) string {
	return "=" + session
}

// SessionExists checks if a session with exactly this name exists
func (c *Client) SessionExists(ctx context.Context, name string) bool {
	return c.RunSilent(ctx, "has-session", "-t", ExactTarget(name)) == nil
}

// CreateSession creates a new detached session rooted at directory.
// It returns the id of the session's first pane.
func (c *Client) CreateSession(ctx context.Context, name, directory string) (string, error) {
	args := []string{"new-session", "-d", "-s", name, "-P", "-F", "#{pane_id}"}
	if directory != "" {
		args = append(args, "-c", directory)
	}
	return c.Run(ctx, args...)
}

// SplitWindow splits target and returns the new pane ID. Vertical stacks
// the panes top/bottom; otherwise they sit side by side.
func (c *Client) SplitWindow(ctx context.Context, target, directory string, vertical bool) (string, error) {
	flag := "-h"
	if vertical {
		flag = "-v"
	}
	args := []string{"split-window", flag, "-t", target, "-P", "-F", "#{pane_id}"}
	if directory != "" {
		args = append(args, "-c", directory)
	}
	return c.Run(ctx, args...)
}

// SelectPane focuses a pane
func (c *Client) SelectPane(ctx context.Context, target string) error {
	return c.RunSilent(ctx, "select-pane", "-t", target)
}

// SetPaneTitle sets the title of a pane
func (c *Client) SetPaneTitle(ctx context.Context, paneID, title string) error {
	return c.RunSilent(ctx, "select-pane", "-t", paneID, "-T", title)
}

// SendKeys sends keys literally, then Enter when requested.
func (c *Client) SendKeys(ctx context.Context, target, keys string, enter bool) error {
	if err := c.RunSilent(ctx, "send-keys", "-t", target, "-l", "--", keys); err != nil {
		return err
	}
	if enter {
		return c.RunSilent(ctx, "send-keys", "-t", target, "C-m")
	}
	return nil
}

// SendInterrupt sends Ctrl+C to a pane
func (c *Client) SendInterrupt(ctx context.Context, target string) error {
	return c.RunSilent(ctx, "send-keys", "-t", target, "C-c")
}

// AttachOrSwitch attaches to a session or switches if already in tmux
func (c *Client) AttachOrSwitch(ctx context.Context, session string) error {
	if c.InTmux() {
		return c.RunSilent(ctx, "switch-client", "-t", ExactTarget(session))
	}
	return c.runner.Interactive(ctx, "attach-session", "-t", ExactTarget(session))
}

// KillSession kills a tmux session
func (c *Client) KillSession(ctx context.Context, session string) error {
	return c.RunSilent(ctx, "kill-session", "-t", ExactTarget(session))
}

// GetPanes returns all panes in a session
func (c *Client) GetPanes(ctx context.Context, session string) ([]Pane, error) {
	sep := "|#|"
	format := fmt.Sprintf("#{pane_id}%[1]s#{pane_index}%[1]s#{pane_title}%[1]s#{pane_current_command}%[1]s#{pane_active}", sep)
	output, err := c.Run(ctx, "list-panes", "-s", "-t", ExactTarget(session), "-F", format)
	if err != nil {
		return nil, err
	}

	var panes []Pane
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, sep)
		if len(parts) < 5 {
			continue
		}
		index, _ := strconv.Atoi(parts[1])
		panes = append(panes, Pane{
			ID:      parts[0],
			Index:   index,
			Title:   parts[2],
			Command: parts[3],
			Active:  parts[4] == "1",
		})
	}
	return panes, nil
}

// ValidateSessionName checks if a session name is valid
func ValidateSessionName(name string) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	if strings.ContainsAny(name, ":.") {
		return errors.New("session name cannot contain ':' or '.'")
	}
	return nil
}
