package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for decoded responses.
var validate = validator.New()

// DecodeInto parses a model response into v and validates it against
// the struct's validate tags.
//
// Models occasionally wrap JSON in markdown code fences or lead with
// prose despite instructions. DecodeInto strips fences and falls back
// to the first balanced JSON object in the content before giving up.
func DecodeInto(content string, v interface{}) error {
	cleaned := stripCodeFences(content)

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		extracted, ok := extractJSONObject(cleaned)
		if !ok {
			return fmt.Errorf("response is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), v); err != nil {
			return fmt.Errorf("extracted object is not valid JSON: %w", err)
		}
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("response failed validation: %w", err)
	}
	return nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line (e.g., "json").
		firstLine := strings.TrimSpace(s[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced top-level JSON object in
// s. String contents are skipped so braces inside values do not break
// the balance count.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
