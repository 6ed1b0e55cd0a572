// Package jsonutil pulls JSON fragments out of generative model output,
// which often wraps them in markdown fences or surrounding prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when text holds no JSON object.
var ErrNoJSON = errors.New("no JSON object found")

// StripMarkdownFences returns the body of a ```-fenced block, or text
// unchanged when it is not fenced.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := text[3:]
	// Drop the info string ("json") on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return text
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractObject returns the span from the first '{' to the last '}' of text.
func ExtractObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return "", fmt.Errorf("unterminated JSON object: %w", ErrNoJSON)
	}
	return text[start : end+1], nil
}

// ParseObject strips fences, extracts the JSON object and decodes it into T.
func ParseObject[T any](raw string) (T, error) {
	var result T
	obj, err := ExtractObject(StripMarkdownFences(raw))
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		preview := obj
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return result, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
