package identity

import "strings"

// matchLike reports whether value matches the wildcard pattern, where '*'
// matches any run of characters and the pattern is anchored at both ends.
// An absent value never matches, not even against a bare "*".
func matchLike(pattern, value string) bool {
	if value == "" {
		return false
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return value == pattern
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	rest := value[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return strings.HasSuffix(rest, last)
}

// matchEqual is the exact, case sensitive comparison used by equality
// filters. A filter left unset matches everything.
func matchEqual(filter, value string) bool {
	return filter == "" || filter == value
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
