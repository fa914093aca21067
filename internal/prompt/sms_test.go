package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFitSMS(t *testing.T) {
	long := strings.Repeat("benefits ", 50) // 450 runes

	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"short unchanged", "  You qualify.  ", 320, "You qualify."},
		{"disabled", long, 0, strings.TrimSpace(long)},
		{"exact length", "abcde", 5, "abcde"},
		{"word boundary", "one two three four", 12, "one two…"},
		{"no space falls back to hard cut", "abcdefghij", 6, "abcde…"},
		{"limit one", "abc", 1, "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitSMS(tt.text, tt.limit); got != tt.want {
				t.Errorf("FitSMS(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestFitSMSNeverExceedsLimit(t *testing.T) {
	inputs := []string{
		strings.Repeat("word ", 200),
		strings.Repeat("ñandú ", 100),
		strings.Repeat("x", 1000),
		"Call 1-800-555-0100, Monday–Friday. " + strings.Repeat("More details follow. ", 30),
	}
	for _, in := range inputs {
		for _, limit := range []int{2, 10, 160, 320} {
			got := FitSMS(in, limit)
			if n := utf8.RuneCountInString(got); n > limit {
				t.Errorf("FitSMS(len=%d, %d) produced %d runes", len(in), limit, n)
			}
			if !strings.HasSuffix(got, "…") {
				t.Errorf("truncated text should end with an ellipsis: %q", got)
			}
		}
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     int
		encoding Encoding
	}{
		{"empty", "", 0, EncodingGSM7},
		{"single gsm", "Hello there", 1, EncodingGSM7},
		{"160 gsm", strings.Repeat("a", 160), 1, EncodingGSM7},
		{"161 gsm", strings.Repeat("a", 161), 2, EncodingGSM7},
		{"306 gsm", strings.Repeat("a", 306), 2, EncodingGSM7},
		{"307 gsm", strings.Repeat("a", 307), 3, EncodingGSM7},
		{"extension chars count double", strings.Repeat("€", 80), 1, EncodingGSM7},
		{"extension overflow", strings.Repeat("€", 81), 2, EncodingGSM7},
		{"ucs2 70", strings.Repeat("ś", 70), 1, EncodingUCS2},
		{"ucs2 71", strings.Repeat("ś", 71), 2, EncodingUCS2},
		{"emoji surrogate pairs", strings.Repeat("😀", 35), 1, EncodingUCS2},
		{"emoji overflow", strings.Repeat("😀", 36), 2, EncodingUCS2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc := Segments(tt.text)
			if got != tt.want || enc != tt.encoding {
				t.Errorf("Segments() = %d %s, want %d %s", got, enc, tt.want, tt.encoding)
			}
		})
	}
}
