package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a record identifier.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid identifier format")
	}
	return nil
}

// ValidateConversationName validates a group conversation name.
func ValidateConversationName(name string) error {
	if len(name) > 256 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}
