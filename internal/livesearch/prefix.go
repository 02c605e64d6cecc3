package livesearch

import "strings"

// IsPrefix reports whether next narrows previous: previous is a
// case-insensitive prefix of next. An empty previous is a prefix of
// everything; a longer previous never is.
func IsPrefix(previous, next string) bool {
	if previous == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(next), strings.ToLower(previous))
}
