// Package flowconfig turns declarative agent configs into running agents.
//
// A config file is UTF-8 text with LF or CRLF line endings. Blank lines are
// ignored; the remaining lines come in triples:
//
//	<agent kind>
//	<comma separated input topics>
//	<comma separated output topics>
package flowconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig reports a config whose structure cannot be read.
var ErrInvalidConfig = errors.New("invalid config")

// Entry is one agent declaration.
type Entry struct {
	Kind    string
	Inputs  []string
	Outputs []string
	Line    int // 1-based line of the kind
}

// Parse reads the triples of text.
func Parse(text string) ([]Entry, error) {
	type line struct {
		n    int
		text string
	}
	var lines []line
	for i, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		lines = append(lines, line{n: i + 1, text: trimmed})
	}
	if len(lines)%3 != 0 {
		return nil, fmt.Errorf("%w: Config file lines must be divisible by 3", ErrInvalidConfig)
	}
	entries := make([]Entry, 0, len(lines)/3)
	for i := 0; i < len(lines); i += 3 {
		entries = append(entries, Entry{
			Kind:    lines[i].text,
			Inputs:  splitTopics(lines[i+1].text),
			Outputs: splitTopics(lines[i+2].text),
			Line:    lines[i].n,
		})
	}
	return entries, nil
}

func splitTopics(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
