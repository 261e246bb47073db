package api

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxFilenameLen = 100
	fallbackName   = "video"
	forbiddenChars = `\/:*?"<>|`
)

// sanitizeFilename turns a video title into a safe download filename:
// unicode-normalized, stripped of filesystem-hostile characters, whitespace
// collapsed and capped in length. An empty result falls back to a generic
// name.
func sanitizeFilename(title string) string {
	s := norm.NFC.String(title)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		b.WriteRune(r)
	}

	s = strings.Join(strings.Fields(b.String()), " ")
	if len(s) > maxFilenameLen {
		cut := maxFilenameLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	if s == "" || strings.Trim(s, ".") == "" {
		return fallbackName
	}
	return s
}
