package sensors

import "strings"

// SelectionList is the user's Sensor list. Without Invert the list names the
// identifiers to collect; with Invert it names the ones to skip.
type SelectionList struct {
	Patterns []string
	Invert   bool
}

// IsAccepted reports whether identifier passes the list. An empty list
// accepts everything.
func (l SelectionList) IsAccepted(identifier string) bool {
	if len(l.Patterns) == 0 {
		return true
	}

	for _, pattern := range l.Patterns {
		if strings.EqualFold(identifier, pattern) {
			return !l.Invert
		}
	}

	return l.Invert
}
