// Package devenv starts the local development environment: a tmux session
// with the webhook server in one pane and the public tunnel in the other.
package devenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jimshare/bae-ai/internal/tmux"
)

// ErrTmuxNotInstalled is returned by Launch when the tmux binary is missing.
var ErrTmuxNotInstalled = tmux.ErrNotInstalled

// DefaultSession is the session name used when none is configured.
const DefaultSession = "bae"

// Pane is one shell pane of the layout and the command typed into it.
type Pane struct {
	Title   string `json:"title"`
	Command string `json:"command"`
}

// Layout describes the session to build.
type Layout struct {
	Session  string `json:"session"`
	Dir      string `json:"dir,omitempty"`
	Vertical bool   `json:"vertical"`
	Panes    []Pane `json:"panes"`
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// WithConfig appends --config to a bae command so the pane loads the same
// file as the launcher. An empty path leaves cmd unchanged.
func WithConfig(cmd, configPath string) string {
	if configPath == "" {
		return cmd
	}
	return cmd + " --config " + ShellQuote(configPath)
}

// DefaultLayout returns the two-pane layout: server on the left, tunnel on the right.
func DefaultLayout(session, dir, serverCmd, tunnelCmd string) Layout {
	if session == "" {
		session = DefaultSession
	}
	return Layout{
		Session: session,
		Dir:     dir,
		Panes: []Pane{
			{Title: "server", Command: serverCmd},
			{Title: "tunnel", Command: tunnelCmd},
		},
	}
}

// Validate checks the session name and that every pane has a command.
func (l Layout) Validate() error {
	if err := tmux.ValidateSessionName(l.Session); err != nil {
		return err
	}
	if len(l.Panes) == 0 {
		return errors.New("layout has no panes")
	}
	for i, p := range l.Panes {
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("pane %d (%s): command is empty", i, p.Title)
		}
	}
	return nil
}

// Options control how Launch treats an existing session and the terminal.
type Options struct {
	// Replace kills an existing session of the same name before creating it.
	Replace bool
	// Detach leaves the session running in the background.
	Detach bool
}

// Result reports what Launch did.
type Result struct {
	Session  string   `json:"session"`
	PaneIDs  []string `json:"pane_ids,omitempty"`
	Created  bool     `json:"created"`
	Attached bool     `json:"attached"`
}

// Launcher builds layouts through a tmux client.
type Launcher struct {
	Tmux   *tmux.Client
	Logger *zap.Logger
	// Out receives the attach hint when the session is left detached.
	Out io.Writer
	// IsTerminal reports whether stdin is interactive. Defaults to checking os.Stdin.
	IsTerminal func() bool
	// LookPath resolves commands for Preflight. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewLauncher returns a launcher over client.
func NewLauncher(client *tmux.Client, logger *zap.Logger) *Launcher {
	if client == nil {
		client = tmux.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{Tmux: client, Logger: logger, Out: os.Stdout}
}

func (l *Launcher) interactive() bool {
	if l.IsTerminal != nil {
		return l.IsTerminal()
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (l *Launcher) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Launch creates the session described by layout, types each pane's command,
// and attaches the operator's terminal.
func (l *Launcher) Launch(ctx context.Context, layout Layout, opts Options) (*Result, error) {
	if err := l.Tmux.EnsureInstalled(); err != nil {
		return nil, ErrTmuxNotInstalled
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	res := &Result{Session: layout.Session}
	log := l.log().With(zap.String("session", layout.Session))

	if l.Tmux.SessionExists(ctx, layout.Session) {
		if !opts.Replace {
			log.Info("session already running, attaching")
			return res, l.attach(ctx, layout.Session, opts, res)
		}
		log.Info("replacing existing session")
		if err := l.Tmux.KillSession(ctx, layout.Session); err != nil {
			return nil, fmt.Errorf("kill existing session: %w", err)
		}
	}

	first, err := l.Tmux.CreateSession(ctx, layout.Session, layout.Dir)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	res.Created = true
	res.PaneIDs = append(res.PaneIDs, first)

	if err := l.populate(ctx, layout, res, log); err != nil {
		// A half-built session would be reused as-is by the next run.
		if killErr := l.Tmux.KillSession(ctx, layout.Session); killErr != nil {
			log.Warn("cleanup after failed launch", zap.Error(killErr))
		}
		return nil, err
	}

	// Leave focus on the server pane.
	if err := l.Tmux.SelectPane(ctx, first); err != nil {
		log.Debug("select pane failed", zap.Error(err))
	}

	return res, l.attach(ctx, layout.Session, opts, res)
}

// populate splits the remaining panes and types every pane's command.
func (l *Launcher) populate(ctx context.Context, layout Layout, res *Result, log *zap.Logger) error {
	target := res.PaneIDs[0]
	for i := 1; i < len(layout.Panes); i++ {
		id, err := l.Tmux.SplitWindow(ctx, target, layout.Dir, layout.Vertical)
		if err != nil {
			return fmt.Errorf("split pane %d: %w", i, err)
		}
		res.PaneIDs = append(res.PaneIDs, id)
		target = id
	}

	for i, p := range layout.Panes {
		id := res.PaneIDs[i]
		if p.Title != "" {
			if err := l.Tmux.SetPaneTitle(ctx, id, p.Title); err != nil {
				log.Debug("set pane title failed", zap.String("pane", id), zap.Error(err))
			}
		}
		if err := l.Tmux.SendKeys(ctx, id, p.Command, true); err != nil {
			return fmt.Errorf("start %s pane: %w", p.Title, err)
		}
		log.Info("pane started",
			zap.String("pane", id),
			zap.String("title", p.Title),
			zap.String("command", p.Command),
		)
	}
	return nil
}

func (l *Launcher) attach(ctx context.Context, session string, opts Options, res *Result) error {
	if opts.Detach || (!l.interactive() && !l.Tmux.InTmux()) {
		if l.Out != nil {
			fmt.Fprintf(l.Out, "Session %q is running. Attach with: tmux attach -t %s\n", session, session)
		}
		return nil
	}
	if err := l.Tmux.AttachOrSwitch(ctx, session); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	res.Attached = true
	return nil
}

// Stop interrupts every pane so the server and tunnel exit on their own,
// then kills the session.
func (l *Launcher) Stop(ctx context.Context, session string) error {
	if err := l.Tmux.EnsureInstalled(); err != nil {
		return ErrTmuxNotInstalled
	}
	if !l.Tmux.SessionExists(ctx, session) {
		return fmt.Errorf("session %q is not running", session)
	}
	log := l.log().With(zap.String("session", session))
	panes, err := l.Tmux.GetPanes(ctx, session)
	if err != nil {
		log.Debug("list panes failed", zap.Error(err))
	}
	for _, p := range panes {
		if err := l.Tmux.SendInterrupt(ctx, p.ID); err != nil {
			log.Debug("interrupt pane failed", zap.String("pane", p.ID), zap.Error(err))
		}
	}
	return l.Tmux.KillSession(ctx, session)
}

// Preflight returns a warning for every pane whose program is not on PATH.
// Missing programs do not stop a launch; the pane's shell reports them.
func (l *Launcher) Preflight(layout Layout) []string {
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var warnings []string
	for _, p := range layout.Panes {
		fields := strings.Fields(p.Command)
		if len(fields) == 0 {
			continue
		}
		if _, err := lookPath(fields[0]); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s pane: %q not found on PATH", p.Title, fields[0]))
		}
	}
	return warnings
}
