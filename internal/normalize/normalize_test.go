package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"alice@purdue.edu", "alice@purdue.edu"},
		{"  Alice@Purdue.EDU ", "alice@purdue.edu"},
		{"bob@purdue.edu\x00", "bob@purdue.edu"},
		// Fullwidth characters fold to ASCII under NFKC.
		{"ｃａｒｏｌ@purdue.edu", "carol@purdue.edu"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Email(tt.input); got != tt.expected {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "Alice"},
		{"  Alice   Smith ", "Alice Smith"},
		{"Bob\tJones", "Bob Jones"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Username(tt.input); got != tt.expected {
				t.Errorf("Username(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"line one\nline two", "line one\nline two"},
		{"nul\x00byte", "nulbyte"},
		{"bell\x07", "bell"},
		// Decomposed e + combining acute composes to a single rune.
		{"cafe\u0301", "caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBlank(t *testing.T) {
	if !Blank("  \n\t ") {
		t.Error("whitespace-only text should be blank")
	}
	if Blank(" hi ") {
		t.Error("text with content should not be blank")
	}
}
