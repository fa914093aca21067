// Package output renders command results for terminals and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// DefaultWidth is used when the terminal width cannot be determined.
const DefaultWidth = 80

// Options configures a Formatter.
type Options struct {
	JSON    bool
	NoColor bool
}

// Formatter writes either styled text or JSON to one writer.
type Formatter struct {
	writer   io.Writer
	json     bool
	color    bool
	renderer *lipgloss.Renderer
	styles   Styles
}

// New creates a Formatter for w. Color is used only when w is a terminal
// and neither opts.NoColor nor NO_COLOR disable it.
func New(w io.Writer, opts Options) *Formatter {
	color := !opts.JSON && ColorEnabled(w, opts.NoColor)
	renderer := lipgloss.NewRenderer(w)
	if !color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &Formatter{
		writer:   w,
		json:     opts.JSON,
		color:    color,
		renderer: renderer,
		styles:   newStyles(renderer),
	}
}

// IsJSON reports whether JSON output was requested.
func (f *Formatter) IsJSON() bool { return f.json }

// Color reports whether ANSI styling is emitted.
func (f *Formatter) Color() bool { return f.color }

// Styles returns the formatter's styles.
func (f *Formatter) Styles() Styles { return f.styles }

// JSON writes v as indented JSON followed by a newline.
func (f *Formatter) JSON(v interface{}) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Heading prints a bold section title.
func (f *Formatter) Heading(title string) {
	fmt.Fprintln(f.writer, f.styles.Heading.Render(title))
}

// Success prints a line prefixed with a check mark.
func (f *Formatter) Success(format string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.styles.Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Warning prints a line prefixed with a warning sign.
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.styles.Warning.Render("!")+" "+fmt.Sprintf(format, args...))
}

// Failure prints a line prefixed with a cross.
func (f *Formatter) Failure(format string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.styles.Error.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// ColorEnabled decides whether w should receive ANSI escapes.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the stdout width, or DefaultWidth when stdout is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}
