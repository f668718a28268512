// Package llmjson pulls structured JSON out of free-form model replies.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONObject indicates the reply does not contain a JSON object.
var ErrNoJSONObject = errors.New("no json object found in response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// ExtractObject returns the JSON object embedded in a model reply. A fenced
// ```json block wins; otherwise the first '{' that starts a complete, valid
// object is used, so braces in surrounding prose are ignored. When nothing
// decodes, the span from the first '{' to the last '}' is returned so the
// caller sees the syntax error.
func ExtractObject(text string) (string, error) {
	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		if json.Valid([]byte(match[1])) {
			return match[1], nil
		}
	}

	for offset := 0; offset < len(text); {
		next := strings.IndexByte(text[offset:], '{')
		if next < 0 {
			break
		}
		candidate := offset + next

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[candidate:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
		offset = candidate + 1
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}

	return text[start : end+1], nil
}

// Decode extracts the first JSON object from text and unmarshals it into target.
func Decode(text string, target interface{}) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("decode json object: %w", err)
	}

	return nil
}

// DecodeAs is the generic form of Decode.
func DecodeAs[T any](text string) (T, error) {
	var value T
	if err := Decode(text, &value); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}
