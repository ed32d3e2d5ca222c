package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a Markdown code fence wrapped around a model response.
// The prompt forbids fences, but models add them anyway often enough that the
// decoder has to cope: drop the first line if it opens a fence, drop the last
// line if it closes one, trim the rest. Pure string surgery, no JSON involved.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			// A single-line fence carries no payload.
			return ""
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasSuffix(s, "```") {
		if idx := strings.LastIndex(s, "\n"); idx != -1 {
			s = s[:idx]
		} else {
			s = strings.TrimSuffix(s, "```")
		}
	}

	return strings.TrimSpace(s)
}

// Decode strips any fence wrapping and parses the remainder as JSON. The
// caller decides what top-level shape it expects.
func Decode(raw string) (any, error) {
	clean := stripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, &DecodeError{Kind: DecodeMalformedJSON, Err: err}
	}

	return parsed, nil
}

// DecodeArray decodes raw and requires a top-level JSON array.
func DecodeArray(raw string) ([]any, error) {
	parsed, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	arr, ok := parsed.([]any)
	if !ok {
		return nil, &DecodeError{
			Kind: DecodeWrongShape,
			Err:  fmt.Errorf("expected array, got %T", parsed),
		}
	}

	return arr, nil
}

// DecodeObject decodes raw and requires a top-level JSON object.
func DecodeObject(raw string) (map[string]any, error) {
	parsed, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, &DecodeError{
			Kind: DecodeWrongShape,
			Err:  fmt.Errorf("expected object, got %T", parsed),
		}
	}

	return obj, nil
}
