package sqltext

import "strings"

// Sanitize drops every line whose trimmed text begins with USE, in any case,
// since PostgreSQL has no USE statement. Other lines keep their content and
// order.
func Sanitize(sqlText string) string {
	sanitized, _ := SanitizeReport(sqlText)
	return sanitized
}

// SanitizeReport is Sanitize plus the number of removed lines.
func SanitizeReport(sqlText string) (string, int) {
	lines := strings.Split(sqlText, "\n")
	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		if isUseStatement(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return sqlText, 0
	}
	return strings.Join(kept, "\n"), removed
}

// isUseStatement matches any line whose trimmed text starts with "use",
// including identifiers such as users or use_x.
func isUseStatement(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "use")
}
