package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Textln outputs plain text with a newline to the formatter's writer
func (f *Formatter) Textln(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, format+"\n", args...)
}

// Line outputs a blank line
func (f *Formatter) Line() {
	fmt.Fprintln(f.writer)
}

// Println writes text with newline to the formatter's writer
func (f *Formatter) Println(v ...interface{}) {
	fmt.Fprintln(f.writer, v...)
}

// KeyValue prints an aligned "key: value" line.
func (f *Formatter) KeyValue(key string, width int, value string) {
	fmt.Fprintf(f.writer, "  %s %s\n", f.styles.Muted.Render(PadRight(key+":", width+1)), value)
}

// Table outputs tabular data in text format. Column widths are measured
// in terminal cells, so wide characters and emoji line up.
type Table struct {
	writer  io.Writer
	header  func(string) string
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &Table{
		writer:  w,
		header:  func(s string) string { return s },
		headers: headers,
		rows:    [][]string{},
		widths:  widths,
	}
}

// Table creates a table whose header row uses the formatter's header style.
func (f *Formatter) Table(headers ...string) *Table {
	t := NewTable(f.writer, headers...)
	t.header = func(s string) string { return f.styles.Header.Render(s) }
	return t
}

// AddRow adds a row to the table
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) {
			if w := runewidth.StringWidth(c); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, cols)
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Render outputs the table
func (t *Table) Render() {
	cells := make([]string, len(t.headers))
	for i, h := range t.headers {
		cells[i] = t.header(PadRight(h, t.widths[i]))
	}
	t.writeLine(cells)

	for i, w := range t.widths {
		cells[i] = strings.Repeat("-", w)
	}
	t.writeLine(cells)

	for _, row := range t.rows {
		for i := range t.headers {
			c := ""
			if i < len(row) {
				c = row[i]
			}
			cells[i] = PadRight(c, t.widths[i])
		}
		t.writeLine(cells)
	}
}

func (t *Table) writeLine(cells []string) {
	fmt.Fprintln(t.writer, strings.TrimRight("  "+strings.Join(cells, "  "), " "))
}

// PadRight pads s with spaces to width terminal cells.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// Truncate shortens s to at most maxWidth terminal cells, ending with "..."
// when anything was cut. Multi-byte runes are never split.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// OneLine collapses whitespace runs, including newlines, to single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Pluralize returns singular or plural form based on count
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// CountStr returns "N item(s)" string
func CountStr(count int, singular, plural string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(count, singular, plural))
}
