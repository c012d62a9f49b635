package sqltext

import "strings"

const fence = "```"

// Extract returns the body of the first fenced code block in text, with an
// optional case-insensitive "sql" tag removed. Text without a usable fence
// pair is returned trimmed.
func Extract(text string) string {
	body, ok := fencedBody(text)
	if !ok {
		return strings.TrimSpace(text)
	}
	return body
}

func fencedBody(text string) (string, bool) {
	open := strings.Index(text, fence)
	if open < 0 {
		return "", false
	}
	rest := text[open+len(fence):]
	if len(rest) >= 3 && strings.EqualFold(rest[:3], "sql") {
		rest = rest[3:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}
