package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Prolific identifiers are 24-character hex strings, but pilot rosters use
// shorter hand-assigned IDs, so the rule is deliberately loose.
var participantIDRegex = regexp.MustCompile(`^[a-z0-9_-]{2,64}$`)

var passcodeRegex = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeParticipantID lowercases and trims a raw login identifier.
func NormalizeParticipantID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateParticipantID checks a normalized participant identifier.
func ValidateParticipantID(id string) error {
	if id == "" {
		return ValidationError{Field: "participant_id", Message: "participant ID is required"}
	}
	if !participantIDRegex.MatchString(id) {
		return ValidationError{Field: "participant_id", Message: "participant ID may only contain letters, digits, hyphens and underscores"}
	}
	return nil
}

// ValidatePasscodeShape checks the letters-plus-digits passcode format
// before the exact comparison happens. Shape failures give the participant a
// clearer message than a generic mismatch.
func ValidatePasscodeShape(code string) error {
	if code == "" {
		return ValidationError{Field: "passcode", Message: "passcode is required"}
	}
	if !passcodeRegex.MatchString(code) {
		return ValidationError{Field: "passcode", Message: "passcodes are three letters followed by three digits"}
	}
	return nil
}
