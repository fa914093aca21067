package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/devenv"
	"github.com/jimshare/bae-ai/internal/output"
	"github.com/jimshare/bae-ai/internal/tmux"
)

// Swapped in tests.
var (
	newTmuxClient = func() *tmux.Client { return tmux.DefaultClient }
	isInteractive = output.IsInteractive
)

func newDevCmd() *cobra.Command {
	var (
		session  string
		kill     bool
		detach   bool
		replace  bool
		vertical bool
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Start the server and a public tunnel in a tmux session",
		Long: `Creates a tmux session with two panes: the webhook server (server pane)
and an ngrok tunnel exposing it (tunnel pane), then attaches to it.

If the session is already running, bae attaches to it instead.
Point your Twilio number's messaging webhook at the tunnel URL + /sms.

Examples:
  bae dev                 # create and attach
  bae dev --detach        # create and leave running
  bae dev --replace       # restart a running session
  bae dev --kill          # stop the session`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := session
			if name == "" {
				name = cfg.Dev.Session
			}
			workdir := dir
			if workdir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
				workdir = wd
			}

			launcher := devenv.NewLauncher(newTmuxClient(), log())
			launcher.Out = cmd.OutOrStdout()
			launcher.IsTerminal = isInteractive
			launcher.LookPath = lookPath
			f := formatter(cmd)

			if kill {
				if err := launcher.Stop(cmd.Context(), name); err != nil {
					return tmuxError(err)
				}
				if f.IsJSON() {
					return f.JSON(map[string]interface{}{"session": name, "stopped": true})
				}
				f.Success("Stopped session %q", name)
				return nil
			}

			layout := devenv.DefaultLayout(name, workdir, serverCommand(cfg.Dev.ServerCommand), cfg.TunnelCommand())
			layout.Vertical = vertical || cfg.Dev.Vertical
			if !f.IsJSON() {
				for _, w := range launcher.Preflight(layout) {
					f.Warning("%s", w)
				}
			}

			res, err := launcher.Launch(cmd.Context(), layout, devenv.Options{
				Replace: replace,
				// JSON callers are scripts; never take over their terminal.
				Detach: detach || f.IsJSON(),
			})
			if err != nil {
				return tmuxError(err)
			}
			if f.IsJSON() {
				return f.JSON(res)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "tmux session name (default from config: dev.session)")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory for both panes (default: current directory)")
	cmd.Flags().BoolVar(&kill, "kill", false, "stop the session instead of starting it")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "do not attach after starting")
	cmd.Flags().BoolVar(&replace, "replace", false, "kill a running session and start fresh")
	cmd.Flags().BoolVar(&vertical, "vertical", false, "stack panes top/bottom instead of side by side")
	return cmd
}

// serverCommand points a bae server pane at the config file this process
// loaded, so the server listens on the port the tunnel forwards to.
func serverCommand(base string) string {
	path := cfgFile
	if path == "" {
		path = os.Getenv("BAE_CONFIG")
	}
	fields := strings.Fields(base)
	if path == "" || len(fields) == 0 || filepath.Base(fields[0]) != "bae" {
		return base
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return devenv.WithConfig(base, path)
}

func tmuxError(err error) error {
	if errors.Is(err, devenv.ErrTmuxNotInstalled) {
		return errors.New("tmux is not installed. Please install tmux first")
	}
	return err
}
