package output

import (
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

// Wrap word-wraps s at width columns. Non-positive widths return s unchanged.
func Wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}

// Block wraps s to fit width after indenting every line by prefix spaces.
func Block(s string, width int, prefix uint) string {
	wrapped := Wrap(s, width-int(prefix))
	return strings.TrimRight(indent.String(wrapped, prefix), " ")
}
