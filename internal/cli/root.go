package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/logging"
	"github.com/jimshare/bae-ai/internal/output"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	// Global JSON output flag - inherited by all subcommands
	jsonOutput bool

	// Global color control flag - inherited by all subcommands
	noColor bool

	verbose bool

	// Build information - set via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// newRootCmd builds the command tree. Flags bind package-level variables,
// so building a new tree also resets them.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bae",
		Short: "SMS assistant: answer Twilio text messages with an LLM",
		Long: `bae answers SMS messages that Twilio forwards to its webhook by asking an
LLM, using a local context file as reference material.

Quick Start:
  bae config init          # Write ~/.config/bae/config.toml
  bae doctor               # Check credentials, tmux and ngrok
  bae dev                  # tmux session: server + ngrok tunnel
  bae ask "When are you open?"   # Try the pipeline without a phone`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				os.Setenv("NO_COLOR", "1")
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger, err = logging.New(logging.Options{
				Level:   cfg.Log.Level,
				Format:  cfg.Log.Format,
				Verbose: verbose,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $BAE_CONFIG or ~/.config/bae/config.toml)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newDevCmd(),
		newServeCmd(),
		newAskCmd(),
		newSignCmd(),
		newSMSCmd(),
		newHistoryCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// formatter returns the output formatter for cmd's stdout.
func formatter(cmd *cobra.Command) *output.Formatter {
	return output.New(cmd.OutOrStdout(), output.Options{JSON: jsonOutput, NoColor: noColor})
}

func log() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// VersionInfo is the `bae version --json` payload.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd)
			if short {
				f.Println(Version)
				return nil
			}
			info := VersionInfo{
				Version:   Version,
				Commit:    Commit,
				Date:      Date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if f.IsJSON() {
				return f.JSON(info)
			}
			f.Textln("bae %s", info.Version)
			f.Textln("  commit:   %s", info.Commit)
			f.Textln("  built:    %s", info.Date)
			f.Textln("  go:       %s (%s)", info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
