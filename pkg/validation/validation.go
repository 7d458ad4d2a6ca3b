package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// UsernameRegex validates plain logins
	UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// IDRegex validates document IDs taken from URLs
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxRoomNameLength    = 100
	MaxRoleNameLength    = 64
	MaxDisplayNameLength = 64
)

// ValidateLogin accepts either an email address or a plain username.
func ValidateLogin(login string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return fmt.Errorf("login is required")
	}
	if len(login) > 254 {
		return fmt.Errorf("login is too long (max 254 characters)")
	}
	if strings.Contains(login, "@") {
		if !EmailRegex.MatchString(login) {
			return fmt.Errorf("invalid email format")
		}
		return nil
	}
	if len(login) < 3 {
		return fmt.Errorf("login must be at least 3 characters")
	}
	if !UsernameRegex.MatchString(login) {
		return fmt.Errorf("login contains invalid characters (only letters, numbers, _, ., - allowed)")
	}
	return nil
}

// ValidateDisplayName validates the name shown next to messages and used as
// the video identity.
func ValidateDisplayName(name string) error {
	if err := ValidateNonEmptyString(name, "display name"); err != nil {
		return err
	}
	if err := ValidateStringLength(strings.TrimSpace(name), 1, MaxDisplayNameLength, "display name"); err != nil {
		return err
	}
	return validPrintable(name, "display name")
}

// ValidatePassword validates password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

// ValidateRoomName validates room name
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return fmt.Errorf("room name is too long (max %d characters)", MaxRoomNameLength)
	}
	return validPrintable(name, "room name")
}

// ValidateRoleName validates a single role tag. Roles are free-form but must
// be non-blank.
func ValidateRoleName(role string) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role is required")
	}
	if utf8.RuneCountInString(role) > MaxRoleNameLength {
		return fmt.Errorf("role is too long (max %d characters)", MaxRoleNameLength)
	}
	return validPrintable(role, "role")
}

// ValidateMessageBody validates a chat message against the configured limit
func ValidateMessageBody(body string, maxLength int) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message is required")
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message contains invalid characters")
	}
	if utf8.RuneCountInString(body) > maxLength {
		return fmt.Errorf("message is too long (max %d characters)", maxLength)
	}
	return nil
}

// ValidateID validates an ID taken from a path parameter
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s is too long (max 100 characters)", fieldName)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

func validPrintable(s, fieldName string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", fieldName)
		}
	}
	return nil
}
