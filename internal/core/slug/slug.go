package slug

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	nonWordChars   = regexp.MustCompile(`[^\w-]`)
)

// Make derives a table-safe slug from a display name.
// Deterministic and pure: whitespace runs become "_", the input is NFD-decomposed
// so accented letters keep their base form, everything outside [0-9A-Za-z_-]
// (combining marks included) is stripped, and the result is lowercased.
// Distinct inputs may collide; callers that need uniqueness must enforce it.
func Make(name string) string {
	s := whitespaceRuns.ReplaceAllString(strings.TrimSpace(name), "_")
	s = norm.NFD.String(s)
	s = nonWordChars.ReplaceAllString(s, "")
	return strings.ToLower(s)
}
