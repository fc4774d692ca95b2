// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTags          = 20
	MaxTagLength     = 64
	MaxCaptionLength = 2200
	MaxLocationLen   = 120
	minSigninPass    = 8
)

var (
	digitRe    = regexp.MustCompile(`[0-9]`)
	specialRe  = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("password must be at least 12 characters long")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must not exceed 128 characters")
	}

	var hasUpper, hasLower bool
	for _, r := range password {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !digitRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one digit")
	}
	if !specialRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character (!@#$%%^&*)")
	}

	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters long")
	}
	if len(username) > 30 {
		return fmt.Errorf("username must not exceed 30 characters")
	}
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, and hyphens")
	}
	// Cannot start or end with underscore/hyphen
	if username[0] == '_' || username[0] == '-' || username[len(username)-1] == '_' || username[len(username)-1] == '-' {
		return fmt.Errorf("username cannot start or end with underscore or hyphen")
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 2 {
		return fmt.Errorf("name must be at least 2 characters long")
	}
	if n > 64 {
		return fmt.Errorf("name must not exceed 64 characters")
	}
	return nil
}

// Signup is the account creation form.
type Signup struct {
	Name     string
	Username string
	Email    string
	Password string
}

// ValidateSignup returns the first failing field check.
func ValidateSignup(in Signup) error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	return ValidatePassword(in.Password)
}

// ValidateSignin checks the shape of a sign-in form. Password strength is not
// re-checked here so accounts created under older rules can still sign in.
func ValidateSignin(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if len(password) < minSigninPass {
		return fmt.Errorf("password must be at least %d characters long", minSigninPass)
	}
	return nil
}

// ParseTags removes all whitespace, splits on commas and drops empty and duplicate tags.
func ParseTags(raw string) ([]string, error) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	tags := []string{}
	seen := make(map[string]struct{})
	for _, tag := range strings.Split(stripped, ",") {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, fmt.Errorf("tag %q exceeds %d characters", tag[:16]+"...", MaxTagLength)
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > MaxTags {
		return nil, fmt.Errorf("at most %d tags are allowed", MaxTags)
	}
	return tags, nil
}

// ValidateCaption bounds the caption length.
func ValidateCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("caption must not exceed %d characters", MaxCaptionLength)
	}
	return nil
}

// ValidateLocation bounds the location length.
func ValidateLocation(location string) error {
	if utf8.RuneCountInString(location) > MaxLocationLen {
		return fmt.Errorf("location must not exceed %d characters", MaxLocationLen)
	}
	return nil
}
