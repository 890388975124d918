package routing

import "strings"

// ConvertPattern converts a path pattern using :param placeholders to the
// router's {param} syntax. Trailing wildcards are kept as chi expects them.
func ConvertPattern(pattern string) string {
	if !strings.Contains(pattern, ":") {
		return pattern
	}
	parts := strings.Split(pattern, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") && len(part) > 1 {
			parts[i] = "{" + part[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

// MatchPrefix reports whether requestPath falls under pattern when pattern is
// treated as a literal prefix. A trailing "*" is stripped first, and matching
// stops at the first placeholder segment. Prefixes only match whole segments.
func MatchPrefix(requestPath, pattern string) bool {
	pattern = strings.TrimSuffix(pattern, "*")
	if i := strings.IndexAny(pattern, "{:"); i >= 0 {
		pattern = pattern[:i]
	}
	if pattern == "" || pattern == "/" {
		return false
	}
	if !strings.HasPrefix(requestPath, pattern) {
		return false
	}
	rest := requestPath[len(pattern):]
	return rest == "" || strings.HasSuffix(pattern, "/") || rest[0] == '/'
}
