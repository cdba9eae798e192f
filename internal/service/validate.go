package service

import "regexp"

// Input validation rules for registration and password changes.
const (
	minPasswordLength = 8
	minUsernameLength = 3
	maxUsernameLength = 30
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// validateEmail checks email format.
func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}
	return nil
}

// validateUsername checks username length and character set.
func validateUsername(username string) error {
	if len(username) < minUsernameLength {
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters long"}
	}
	if len(username) > maxUsernameLength {
		return &ValidationError{Field: "username", Message: "Username must be at most 30 characters long"}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Message: "Username can only contain letters, numbers, and underscores"}
	}
	return nil
}

// validatePassword enforces the password strength policy: minimum length
// plus one character from each class.
func validatePassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters long"}
	case !upperPattern.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one uppercase letter"}
	case !lowerPattern.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one lowercase letter"}
	case !digitPattern.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one digit"}
	case !specialPattern.MatchString(password):
		return &ValidationError{Field: "password", Message: "Password must contain at least one special character"}
	}
	return nil
}
