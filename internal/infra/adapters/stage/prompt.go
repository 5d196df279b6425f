package stage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeModelJSON parses a JSON payload out of a model reply, tolerating the
// usual markdown code fences around it.
func decodeModelJSON(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("model reply is not valid JSON: %w", err)
	}
	return nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
