package chat

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"valid short", "hello", false},
		{"empty", "", true},
		{"max chars ok", strings.Repeat("a", MaxTextChars), false},
		{"too many chars", strings.Repeat("a", MaxTextChars+1), true},
		{"too many bytes", strings.Repeat("é", MaxMessageBytes), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
		{"unicode ok", "こんにちは", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Alice", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("x", MaxNameChars+1), true},
		{"newline", "Ali\nce", true},
		{"tab", "Ali\tce", true},
		{"unicode", "アリス", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
