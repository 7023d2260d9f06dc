package parsing

import (
	"regexp"
	"strings"
)

// Cursor holds the not-yet-consumed portion of a command string. Each
// successful Extract removes the captured text from the buffer, so a
// sequence of calls reads the input left to right without tracking an
// explicit position.
type Cursor struct {
	text string
}

// NewCursor creates a Cursor over text with surrounding whitespace trimmed.
func NewCursor(text string) *Cursor {
	return &Cursor{text: strings.TrimSpace(text)}
}

// Text returns the remaining buffer.
func (c *Cursor) Text() string {
	return c.text
}

// Groups holds one entry per capture group of the applied pattern, in
// order. A nil entry means the group did not take part in the match, which
// is different from a group that captured the empty string.
type Groups []*string

// Has reports whether group i took part in the match.
func (g Groups) Has(i int) bool {
	return i >= 0 && i < len(g) && g[i] != nil
}

// Get returns the text captured by group i, or "" when the group did not
// take part in the match.
func (g Groups) Get(i int) string {
	if !g.Has(i) {
		return ""
	}
	return *g[i]
}

// Extract matches re against the current buffer (first occurrence, not
// anchored) and returns the capture groups. Each group that captured text
// has that text removed from the buffer at its first occurrence only, then
// the buffer is re-trimmed. When re does not match, the buffer is left
// untouched and ok is false.
func (c *Cursor) Extract(re *regexp.Regexp) (Groups, bool) {
	idx := re.FindStringSubmatchIndex(c.text)
	if idx == nil {
		return nil, false
	}

	n := re.NumSubexp()
	groups := make(Groups, n)
	for i := 1; i <= n; i++ {
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		captured := c.text[start:end]
		groups[i-1] = &captured
	}

	// One removal per captured group. Two groups capturing the same
	// substring remove it twice, a token that reappears later in the text
	// is only consumed once.
	for _, g := range groups {
		if g != nil && *g != "" {
			c.text = strings.Replace(c.text, *g, "", 1)
		}
	}
	c.text = strings.TrimSpace(c.text)

	return groups, true
}
