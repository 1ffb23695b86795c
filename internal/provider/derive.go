package provider

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyPrompt = errors.New("prompt must not be empty")

// DeriveSegmentPrompts expands one top-level prompt into count
// per-segment prompts. The phrasing keeps visual continuity between
// consecutive clips; generation for each segment is independent.
func DeriveSegmentPrompts(prompt string, count int) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if count < 1 {
		return nil, fmt.Errorf("segment count must be at least 1, got %d", count)
	}
	if count == 1 {
		return []string{prompt}, nil
	}

	prompts := make([]string, count)
	for i := range prompts {
		var phase string
		switch {
		case i == 0:
			phase = "opening shot"
		case i == count-1:
			phase = "closing shot"
		default:
			phase = fmt.Sprintf("scene %d", i+1)
		}
		prompts[i] = fmt.Sprintf("%s. %s, clip %d of %d, continuing seamlessly from the previous clip.",
			prompt, capitalize(phase), i+1, count)
	}
	return prompts, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
