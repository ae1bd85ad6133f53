package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // max serialized payload contribution
	MaxTextChars    = 2000 // max character count per message
	MaxNameChars    = 32   // max display name length
)

// ValidateMessage checks that a chat message body meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// ValidateName checks a display name. Names are free text and not bound to
// an identity, but must be printable and bounded.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is empty")
	}
	if utf8.RuneCountInString(name) > MaxNameChars {
		return fmt.Errorf("display name exceeds %d character limit", MaxNameChars)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid UTF-8")
	}
	if strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("display name contains control characters")
	}
	return nil
}
