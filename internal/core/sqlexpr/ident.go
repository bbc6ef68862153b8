package sqlexpr

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	barePattern  = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// QuoteIdentifier renders an identifier for SQL text: bare when it is already
// a safe lowercase identifier, double-quoted (with embedded quotes doubled)
// otherwise.
func QuoteIdentifier(name string) string {
	if barePattern.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Column validates a user-supplied column name and returns its SQL form.
// Only plain identifiers are accepted; anything else is rejected rather than
// escaped, since column names come from stored definitions and request bodies.
func Column(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty column name")
	}
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid column name %q", name)
	}
	return QuoteIdentifier(name), nil
}
