package protocol

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// ExtractObject returns the first balanced JSON object embedded in text,
// ignoring markdown fences and surrounding prose.
func ExtractObject(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &domain.ParseError{Input: text, Reason: "empty response"}
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimLeft(trimmed, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSpace(trimmed)
	}
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))

	start := -1
	depth := 0
	inString := false
	escape := false
	for i, r := range trimmed {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return trimmed[start : i+1], nil
			}
		}
	}
	if start == -1 {
		return "", &domain.ParseError{Input: text, Reason: "no JSON object found"}
	}
	return "", &domain.ParseError{Input: text, Reason: "unbalanced JSON object"}
}

// DecodeObject extracts the embedded object from text and decodes it into out
// (a pointer to a struct with json tags). Decoding is lenient about scalar
// types ("0.7" for a number, a lone string for a list) because models are.
func DecodeObject(text string, out any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return &domain.ParseError{Input: text, Reason: "invalid JSON: " + err.Error()}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return &domain.ParseError{Input: text, Reason: "unexpected shape: " + err.Error()}
	}
	return nil
}
