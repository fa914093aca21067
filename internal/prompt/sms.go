package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSMSLimit is two concatenated segments' worth of characters.
const DefaultSMSLimit = 320

const ellipsis = "…"

// FitSMS trims text and, when it exceeds limit runes, cuts it at the last
// word boundary that leaves room for an ellipsis. A limit of 0 disables cutting.
func FitSMS(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit == 1 {
		return ellipsis
	}

	runes := []rune(text)
	cut := runes[:limit-1]
	// Back up to whitespace when one exists in the second half.
	for i := len(cut) - 1; i >= len(cut)/2; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '?' && r != '!' && r != ')'
	}) + ellipsis
}

// gsm7 lists the GSM 03.38 basic character set.
const gsm7 = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// gsm7Ext characters take two septets (escape + char).
const gsm7Ext = "^{}\\[~]|€\f"

// Encoding names the SMS alphabet a message needs.
type Encoding string

const (
	EncodingGSM7 Encoding = "GSM-7"
	EncodingUCS2 Encoding = "UCS-2"
)

// Segments returns the number of SMS segments text occupies and the encoding
// used. GSM-7 fits 160 septets in one segment and 153 per concatenated part;
// UCS-2 fits 70 and 67 UTF-16 code units.
func Segments(text string) (int, Encoding) {
	if text == "" {
		return 0, EncodingGSM7
	}

	septets := 0
	gsm := true
	for _, r := range text {
		switch {
		case strings.ContainsRune(gsm7, r):
			septets++
		case strings.ContainsRune(gsm7Ext, r):
			septets += 2
		default:
			gsm = false
		}
		if !gsm {
			break
		}
	}
	if gsm {
		return segmentCount(septets, 160, 153), EncodingGSM7
	}

	units := 0
	for _, r := range text {
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return segmentCount(units, 70, 67), EncodingUCS2
}

func segmentCount(n, single, multi int) int {
	if n <= single {
		return 1
	}
	return (n + multi - 1) / multi
}
