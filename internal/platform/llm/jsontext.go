package llm

import (
	"encoding/json"
	"strings"
)

// StripCodeFences removes a leading ```lang line and a trailing ``` line.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// DecodeJSON unmarshals model output into out, tolerating a fenced wrapper.
func DecodeJSON(raw string, out any) error {
	return json.Unmarshal([]byte(StripCodeFences(raw)), out)
}
