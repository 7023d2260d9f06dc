package parsing

import "regexp"

var emailAddressPattern = regexp.MustCompile(`([\w.\-]+@[\w\-]+\.[\w.\-]+)`)

// ParseEmailAddress finds the first email address in text, or "" when none
// is present. Surrounding words are ignored so the address can be pulled
// out of a whole command line.
func ParseEmailAddress(text string) string {
	m := emailAddressPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
