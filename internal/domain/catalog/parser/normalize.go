package parser

import (
	"regexp"
	"strings"
)

var (
	separatorRun = regexp.MustCompile(`[\s\p{Zs}-]+`)
	nonWordChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// NormalizeHeader canonicalizes a free-text column header: outer whitespace
// trimmed, uppercased, runs of whitespace and hyphens collapsed to one "_",
// and anything outside [A-Za-z0-9_] dropped. The result is a fixed point.
//
//	NormalizeHeader("Codigo Cliente") == NormalizeHeader("codigo-cliente") == "CODIGO_CLIENTE"
func NormalizeHeader(h string) string {
	h = strings.ToUpper(strings.TrimSpace(h))
	if h == "" {
		return ""
	}
	h = separatorRun.ReplaceAllString(h, "_")
	return nonWordChars.ReplaceAllString(h, "")
}
