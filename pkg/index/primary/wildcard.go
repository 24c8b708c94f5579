package primary

import "strings"

// matchWildcard implements the shell-style '*' matcher: the pattern is
// split on '*', and the matcher checks anchored (first and last piece)
// or unanchored (middle pieces) segment presence in order.
func matchWildcard(pattern, candidate string) bool {
	if pattern == "" {
		return candidate == ""
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return candidate == pattern
	}

	pos := 0
	if parts[0] != "" {
		if !strings.HasPrefix(candidate, parts[0]) {
			return false
		}
		pos = len(parts[0])
	}
	last := len(parts) - 1
	if parts[last] != "" {
		if !strings.HasSuffix(candidate, parts[last]) {
			return false
		}
	}
	for i := 1; i < last; i++ {
		part := parts[i]
		if part == "" {
			continue
		}
		idx := strings.Index(candidate[pos:], part)
		if idx == -1 {
			return false
		}
		pos += idx + len(part)
	}
	if parts[last] != "" {
		// ensure the matched suffix doesn't overlap with an earlier match position
		suffixStart := len(candidate) - len(parts[last])
		if suffixStart < pos {
			return false
		}
	}
	return true
}
