package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Text is a field that models may send as a string, a list or an object.
// Whatever arrives is stored in a canonical string form: lists are joined
// with newlines and objects are rendered as indented JSON.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*t = Text(Normalize(value))
	return nil
}

// String returns the canonical text.
func (t Text) String() string {
	return string(t)
}

// Normalize converts a decoded JSON value into its canonical string form.
func Normalize(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, Normalize(item))
		}
		return strings.Join(parts, "\n")
	case map[string]interface{}:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Number accepts a JSON number or a numeric string.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*n = 0
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = Number(parsed)
		return nil
	}

	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Flag accepts a JSON boolean or the strings "true"/"yes"/"false"/"no".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch v := value.(type) {
	case bool:
		*f = Flag(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			*f = true
		default:
			*f = false
		}
	case float64:
		*f = v != 0
	default:
		*f = false
	}
	return nil
}

// Strings accepts either a JSON list of values or a single string.
type Strings []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Strings) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch v := value.(type) {
	case nil:
		*s = nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if text := strings.TrimSpace(Normalize(item)); text != "" {
				out = append(out, text)
			}
		}
		*s = out
	default:
		text := strings.TrimSpace(Normalize(v))
		if text == "" {
			*s = nil
			return nil
		}
		*s = Strings{text}
	}
	return nil
}
