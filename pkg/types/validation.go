package types

import (
	"regexp"
	"strings"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks the opaque user ID format shared by the auth layer
// and the REST surface.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// ValidateContent enforces the append-side content rules: non-empty, at most
// maxLen bytes. The same check runs for community publishes even though they
// never reach the store.
func ValidateContent(content string, maxLen int) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if maxLen > 0 && len(content) > maxLen {
		return ErrContentTooLong
	}
	return nil
}
