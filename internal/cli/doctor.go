package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/output"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Check statuses.
const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

// DoctorReport contains the full health check report
type DoctorReport struct {
	Timestamp time.Time `json:"timestamp"`
	Overall   string    `json:"overall"` // "healthy", "warning", "unhealthy"
	Checks    []Check   `json:"checks"`
	Warnings  int       `json:"warnings"`
	Errors    int       `json:"errors"`
}

// Check is one health check result.
type Check struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message,omitempty"`
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that bae is ready to run",
		Long: `Validates the local setup. Checks:

  - tmux and the tunnel program (for bae dev)
  - configuration values
  - LLM and Twilio credentials
  - the context file and the message log
  - whether the server port is free`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			report := performDoctorCheck(ctx, cfg)
			f := formatter(cmd)
			if f.IsJSON() {
				if err := f.JSON(report); err != nil {
					return err
				}
			} else {
				renderDoctor(f, report)
			}
			if report.Errors > 0 {
				return fmt.Errorf("doctor found %s", output.CountStr(report.Errors, "problem", "problems"))
			}
			return nil
		},
	}
}

func performDoctorCheck(ctx context.Context, c *config.Config) *DoctorReport {
	report := &DoctorReport{Timestamp: time.Now(), Overall: "healthy"}
	add := func(group, name, status, message string) {
		report.Checks = append(report.Checks, Check{Group: group, Name: name, Status: status, Message: message})
		switch status {
		case statusError:
			report.Errors++
		case statusWarning:
			report.Warnings++
		}
	}

	// Dependencies
	client := newTmuxClient()
	if client.IsInstalled() {
		version, err := client.Run(ctx, "-V")
		if err != nil {
			version = "installed"
		}
		add("dependencies", "tmux", statusOK, strings.TrimSpace(version))
	} else {
		add("dependencies", "tmux", statusWarning, "not installed; bae dev needs it")
	}
	if fields := strings.Fields(c.TunnelCommand()); len(fields) > 0 {
		if path, err := lookPath(fields[0]); err == nil {
			add("dependencies", fields[0], statusOK, path)
		} else {
			add("dependencies", fields[0], statusWarning, "not found on PATH; bae dev cannot open the tunnel")
		}
	}

	// Configuration
	if errs := config.Validate(c); len(errs) > 0 {
		for _, err := range errs {
			add("configuration", "config", statusError, err.Error())
		}
	} else {
		add("configuration", "config", statusOK, "valid")
	}

	// Credentials
	if err := config.ValidateLLMCredentials(c); err != nil {
		add("credentials", c.LLM.Provider, statusError, err.Error())
	} else {
		add("credentials", c.LLM.Provider, statusOK, "API key set ("+c.LLM.Model+")")
	}
	switch {
	case c.Twilio.AuthToken == "" && c.Twilio.ValidateSignature:
		add("credentials", "twilio", statusError, "TWILIO_AUTH_TOKEN is not set; webhook signatures cannot be checked")
	case c.Twilio.AuthToken == "":
		add("credentials", "twilio", statusWarning, "TWILIO_AUTH_TOKEN is not set; signature validation is disabled")
	case c.Twilio.AccountSID == "":
		add("credentials", "twilio", statusWarning, "TWILIO_ACCOUNT_SID is not set; bae sms send and rest replies need it")
	default:
		add("credentials", "twilio", statusOK, "account "+c.Twilio.AccountSID)
	}
	if !c.Twilio.ValidateSignature {
		add("credentials", "signatures", statusWarning, "twilio.validate_signature is off; anyone can post to /sms")
	}

	// Files
	if info, err := os.Stat(c.Prompt.ContextFile); err != nil {
		add("files", "context", statusWarning, c.Prompt.ContextFile+" not found; replies will have no reference context")
	} else {
		add("files", "context", statusOK, fmt.Sprintf("%s (%d bytes)", c.Prompt.ContextFile, info.Size()))
	}
	if c.Store.Enabled {
		if s, err := openStore(c); err != nil {
			add("files", "message log", statusError, err.Error())
		} else {
			s.Close()
			add("files", "message log", statusOK, c.Store.Path)
		}
	}

	// Network
	addr := net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
	if l, err := net.Listen("tcp", addr); err != nil {
		add("network", "port", statusWarning, addr+" is in use (is bae serve already running?)")
	} else {
		l.Close()
		add("network", "port", statusOK, addr+" is free")
	}

	if report.Errors > 0 {
		report.Overall = "unhealthy"
	} else if report.Warnings > 0 {
		report.Overall = "warning"
	}
	return report
}

func renderDoctor(f *output.Formatter, report *DoctorReport) {
	group := ""
	for _, c := range report.Checks {
		if c.Group != group {
			if group != "" {
				f.Line()
			}
			group = c.Group
			f.Heading(strings.ToUpper(group[:1]) + group[1:])
		}
		switch c.Status {
		case statusOK:
			f.Success("%s: %s", c.Name, c.Message)
		case statusWarning:
			f.Warning("%s: %s", c.Name, c.Message)
		default:
			f.Failure("%s: %s", c.Name, c.Message)
		}
	}
	f.Line()

	summary := fmt.Sprintf("%s · %s · %s", report.Overall,
		output.CountStr(report.Warnings, "warning", "warnings"),
		output.CountStr(report.Errors, "error", "errors"))
	style := f.Styles().Success
	switch report.Overall {
	case "warning":
		style = f.Styles().Warning
	case "unhealthy":
		style = f.Styles().Error
	}
	f.Println(f.Styles().Box.Render(style.Render(summary)))
}
