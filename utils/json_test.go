package utils

import (
	"testing"
)

func TestParseJSONFromLLMResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"raw object", `{"title": "Debugging a race"}`, false},
		{"code block", "```json\n{\"title\": \"Debugging a race\"}\n```", false},
		{"bare code block", "```\n{\"title\": \"Debugging a race\"}\n```", false},
		{"surrounding text", `Here is the title: {"title": "Debugging a race"}`, false},
		{"array", `["a", "b"]`, false},
		{"no json", "I could not produce a title.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSONFromLLMResponse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseJSONFromLLMResponse(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
			}
		})
	}
}

func TestExtractTitleFromJSON(t *testing.T) {
	parsed, err := ParseJSONFromLLMResponse(`{"title": "  Fixing CI flakes  "}`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if got := ExtractTitleFromJSON(parsed); got != "Fixing CI flakes" {
		t.Errorf("expected trimmed title, got %q", got)
	}

	// Bare string responses
	if got := ExtractTitleFromJSON("Plain title"); got != "Plain title" {
		t.Errorf("expected bare string passthrough, got %q", got)
	}

	// No title field
	parsed, _ = ParseJSONFromLLMResponse(`{"summary": "nope"}`)
	if got := ExtractTitleFromJSON(parsed); got != "" {
		t.Errorf("expected empty title, got %q", got)
	}
}
