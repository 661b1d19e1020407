package bridge

import (
	"regexp"
	"strings"
)

// ansiPattern matches CSI sequences, OSC sequences (BEL or ST terminated)
// and lone two-byte escapes.
var ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)?|[@-Z\\-_])`)

// sanitizeInput strips terminal control noise from inbound chat text:
// ANSI escape sequences, null bytes, and C0/C1 control characters other
// than newline, tab and carriage return. Idempotent.
func sanitizeInput(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t', '\r':
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}
