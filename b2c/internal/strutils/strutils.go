package strutils

import "strings"

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// ReplaceAllFold returns a copy of s with every non-overlapping,
// case-insensitive occurrence of old replaced by new. Bytes of s outside the
// matches are copied unchanged.
func ReplaceAllFold(s, old, new string) string {
	if old == "" || len(old) > len(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i <= len(s)-len(old) {
		if strings.EqualFold(s[i:i+len(old)], old) {
			b.WriteString(new)
			i += len(old)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	b.WriteString(s[i:])
	return b.String()
}
