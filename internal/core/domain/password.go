package domain

import "unicode"

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// CheckPassword applies the password policy shared by every path that
// stores a new password: between MinPasswordLength characters and
// MaxPasswordBytes bytes, with an upper-case letter, a lower-case letter
// and a digit.
func CheckPassword(password string) error {
	if len([]rune(password)) < MinPasswordLength || len(password) > MaxPasswordBytes {
		return ErrWeakPassword
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}
