// Package tmuxtest provides a recording tmux Runner for tests.
package tmuxtest

import (
	"context"
	"strings"
	"sync"
)

// Fake records tmux invocations instead of executing them.
type Fake struct {
	mu sync.Mutex

	// Installed controls Available.
	Installed bool
	// Output maps a joined argument string to the stdout returned for it.
	Output map[string]string
	// Errs maps a joined argument string to the error returned for it.
	Errs map[string]error

	Calls    [][]string
	Attached [][]string
}

// New returns an installed fake with no canned output.
func New() *Fake {
	return &Fake{
		Installed: true,
		Output:    make(map[string]string),
		Errs:      make(map[string]error),
	}
}

// Key builds the lookup key used by Output and Errs.
func Key(args ...string) string {
	return strings.Join(args, " ")
}

// Run records the call and returns the canned output or error.
func (f *Fake) Run(_ context.Context, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, append([]string(nil), args...))
	k := Key(args...)
	if err, ok := f.Errs[k]; ok {
		return f.Output[k], err
	}
	return f.Output[k], nil
}

// Interactive records an attach-style call.
func (f *Fake) Interactive(_ context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attached = append(f.Attached, append([]string(nil), args...))
	if err, ok := f.Errs[Key(args...)]; ok {
		return err
	}
	return nil
}

// Available reports the Installed flag.
func (f *Fake) Available() bool {
	return f.Installed
}

// Find returns every recorded call whose first argument is subcmd.
func (f *Fake) Find(subcmd string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, call := range f.Calls {
		if len(call) > 0 && call[0] == subcmd {
			out = append(out, call)
		}
	}
	return out
}

// HasArgPair checks whether call contains arg immediately followed by val.
func HasArgPair(call []string, arg, val string) bool {
	for i, a := range call {
		if a == arg && i+1 < len(call) && call[i+1] == val {
			return true
		}
	}
	return false
}
