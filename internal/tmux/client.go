package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrNotInstalled is returned when the tmux binary cannot be found.
var ErrNotInstalled = errors.New("tmux is not installed. Install it with: brew install tmux (macOS) or apt install tmux (Linux)")

// Runner executes tmux subcommands. The default implementation shells out
// to the tmux binary; tests substitute a recorder.
type Runner interface {
	// Run executes tmux with args and returns trimmed stdout.
	Run(ctx context.Context, args ...string) (string, error)
	// Interactive executes tmux wired to the caller's terminal.
	Interactive(ctx context.Context, args ...string) error
	// Available reports whether the tmux binary can be executed.
	Available() bool
}

// ExecRunner runs the tmux binary via os/exec.
type ExecRunner struct {
	Binary string // defaults to "tmux"
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) binary() string {
	if r.Binary == "" {
		return "tmux"
	}
	return r.Binary
}

// Run executes a tmux command
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Interactive runs tmux attached to the terminal (attach-session needs a tty).
func (r *ExecRunner) Interactive(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Stdin = orDefault(r.Stdin, os.Stdin)
	cmd.Stdout = orDefaultWriter(r.Stdout, os.Stdout)
	cmd.Stderr = orDefaultWriter(r.Stderr, os.Stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// Available checks if tmux is on PATH
func (r *ExecRunner) Available() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

func orDefault(r io.Reader, def io.Reader) io.Reader {
	if r == nil {
		return def
	}
	return r
}

func orDefaultWriter(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

// Client handles tmux operations through a Runner.
type Client struct {
	runner Runner
	// Getenv is used to detect an enclosing tmux session ($TMUX).
	Getenv func(string) string
}

// NewClient creates a new tmux client. A nil runner uses ExecRunner.
func NewClient(runner Runner) *Client {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Client{runner: runner, Getenv: os.Getenv}
}

// DefaultClient is the default local client
var DefaultClient = NewClient(nil)

// Run executes a tmux command
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	return c.runner.Run(ctx, args...)
}

// RunSilent executes a tmux command ignoring output
func (c *Client) RunSilent(ctx context.Context, args ...string) error {
	_, err := c.runner.Run(ctx, args...)
	return err
}

// IsInstalled checks if tmux is available
func (c *Client) IsInstalled() bool {
	return c.runner.Available()
}

// EnsureInstalled returns ErrNotInstalled if tmux is missing.
func (c *Client) EnsureInstalled() error {
	if !c.IsInstalled() {
		return ErrNotInstalled
	}
	return nil
}

// InTmux returns true if currently inside a tmux session
func (c *Client) InTmux() bool {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return getenv("TMUX") != ""
}
