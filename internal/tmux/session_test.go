package tmux

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jimshare/bae-ai/internal/tmux/tmuxtest"
)

func TestEnsureInstalled(t *testing.T) {
	fake := tmuxtest.New()
	fake.Installed = false
	c := NewClient(fake)

	if err := c.EnsureInstalled(); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("EnsureInstalled() = %v, want ErrNotInstalled", err)
	}

	fake.Installed = true
	if err := c.EnsureInstalled(); err != nil {
		t.Fatalf("EnsureInstalled() with tmux = %v", err)
	}
}

func TestSessionExists(t *testing.T) {
	ctx := context.Background()
	fake := tmuxtest.New()
	fake.Errs[tmuxtest.Key("has-session", "-t", "=missing")] = errors.New("can't find session")
	c := NewClient(fake)

	if c.SessionExists(ctx, "missing") {
		t.Error("SessionExists(missing) = true, want false")
	}
	if !c.SessionExists(ctx, "present") {
		t.Error("SessionExists(present) = false, want true")
	}
}

func TestCreateSessionAndSplit(t *testing.T) {
	ctx := context.Background()
	fake := tmuxtest.New()
	fake.Output[tmuxtest.Key("new-session", "-d", "-s", "bae", "-P", "-F", "#{pane_id}", "-c", "/srv")] = "%0"
	fake.Output[tmuxtest.Key("split-window", "-v", "-t", "%0", "-P", "-F", "#{pane_id}", "-c", "/srv")] = "%1"
	c := NewClient(fake)

	first, err := c.CreateSession(ctx, "bae", "/srv")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if first != "%0" {
		t.Errorf("first pane = %q, want %%0", first)
	}

	second, err := c.SplitWindow(ctx, first, "/srv", true)
	if err != nil {
		t.Fatalf("SplitWindow: %v", err)
	}
	if second != "%1" {
		t.Errorf("second pane = %q, want %%1", second)
	}
}

func TestSendKeysLiteralThenEnter(t *testing.T) {
	fake := tmuxtest.New()
	c := NewClient(fake)

	if err := c.SendKeys(context.Background(), "%1", "ngrok http 8000", true); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}

	want := [][]string{
		{"send-keys", "-t", "%1", "-l", "--", "ngrok http 8000"},
		{"send-keys", "-t", "%1", "C-m"},
	}
	if diff := cmp.Diff(want, fake.Calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSendKeysWithoutEnter(t *testing.T) {
	fake := tmuxtest.New()
	c := NewClient(fake)

	if err := c.SendKeys(context.Background(), "%1", "echo hi", false); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	if len(fake.Calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fake.Calls))
	}
}

func TestAttachOrSwitch(t *testing.T) {
	ctx := context.Background()

	t.Run("outside tmux attaches interactively", func(t *testing.T) {
		fake := tmuxtest.New()
		c := NewClient(fake)
		c.Getenv = func(string) string { return "" }

		if err := c.AttachOrSwitch(ctx, "bae"); err != nil {
			t.Fatalf("AttachOrSwitch: %v", err)
		}
		if len(fake.Attached) != 1 || !tmuxtest.HasArgPair(fake.Attached[0], "-t", "=bae") {
			t.Errorf("interactive calls = %v, want attach-session -t bae", fake.Attached)
		}
		if len(fake.Find("switch-client")) != 0 {
			t.Error("switch-client should not be used outside tmux")
		}
	})

	t.Run("inside tmux switches client", func(t *testing.T) {
		fake := tmuxtest.New()
		c := NewClient(fake)
		c.Getenv = func(key string) string {
			if key == "TMUX" {
				return "/tmp/tmux-1000/default,123,0"
			}
			return ""
		}

		if err := c.AttachOrSwitch(ctx, "bae"); err != nil {
			t.Fatalf("AttachOrSwitch: %v", err)
		}
		if len(fake.Attached) != 0 {
			t.Errorf("interactive calls = %v, want none", fake.Attached)
		}
		if len(fake.Find("switch-client")) != 1 {
			t.Error("expected one switch-client call")
		}
	})
}

func TestGetPanes(t *testing.T) {
	fake := tmuxtest.New()
	format := "#{pane_id}|#|#{pane_index}|#|#{pane_title}|#|#{pane_current_command}|#|#{pane_active}"
	fake.Output[tmuxtest.Key("list-panes", "-s", "-t", "=bae", "-F", format)] =
		"%0|#|0|#|server|#|bae|#|1\n%1|#|1|#|tunnel|#|ngrok|#|0\nbroken-line"
	c := NewClient(fake)

	panes, err := c.GetPanes(context.Background(), "bae")
	if err != nil {
		t.Fatalf("GetPanes: %v", err)
	}
	want := []Pane{
		{ID: "%0", Index: 0, Title: "server", Command: "bae", Active: true},
		{ID: "%1", Index: 1, Title: "tunnel", Command: "ngrok", Active: false},
	}
	if diff := cmp.Diff(want, panes); diff != "" {
		t.Errorf("panes mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateSessionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "bae", false},
		{"dashes", "bae-dev", false},
		{"empty", "", true},
		{"colon", "bae:0", true},
		{"dot", "bae.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSessionTargetsMatchExactly(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(c *Client) error
		sub  string
	}{
		{"has-session", func(c *Client) error { c.SessionExists(ctx, "bae"); return nil }, "has-session"},
		{"kill-session", func(c *Client) error { return c.KillSession(ctx, "bae") }, "kill-session"},
		{"list-panes", func(c *Client) error { _, err := c.GetPanes(ctx, "bae"); return err }, "list-panes"},
		{"switch-client", func(c *Client) error {
			c.Getenv = func(string) string { return "/tmp/tmux-1000/default,1,0" }
			return c.AttachOrSwitch(ctx, "bae")
		}, "switch-client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := tmuxtest.New()
			c := NewClient(fake)
			if err := tt.call(c); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			calls := fake.Find(tt.sub)
			if len(calls) != 1 || !tmuxtest.HasArgPair(calls[0], "-t", "=bae") {
				t.Errorf("calls = %v, want %s -t =bae", calls, tt.sub)
			}
		})
	}
}
