package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword is wrapped by every password policy failure.
var ErrWeakPassword = errors.New("password does not meet policy")

// PasswordPolicy holds the minimum character class counts a strong password needs.
type PasswordPolicy struct {
	MinLength   int
	MinDigits   int
	MinLower    int
	MinUpper    int
	MinNonAlnum int
}

// DefaultPasswordPolicy matches the directory's stock policy.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:   8,
	MinDigits:   1,
	MinLower:    1,
	MinUpper:    1,
	MinNonAlnum: 1,
}

// Check returns nil for a strong password and an error wrapping
// ErrWeakPassword listing every unmet rule otherwise.
func (p PasswordPolicy) Check(password string) error {
	var digits, lower, upper, other int
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLower(r):
			lower++
		case unicode.IsUpper(r):
			upper++
		case !unicode.IsLetter(r):
			other++
		}
	}

	var problems []string
	if n := len([]rune(password)); n < p.MinLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	if digits < p.MinDigits {
		problems = append(problems, fmt.Sprintf("at least %d digit(s)", p.MinDigits))
	}
	if lower < p.MinLower {
		problems = append(problems, fmt.Sprintf("at least %d lower case letter(s)", p.MinLower))
	}
	if upper < p.MinUpper {
		problems = append(problems, fmt.Sprintf("at least %d upper case letter(s)", p.MinUpper))
	}
	if other < p.MinNonAlnum {
		problems = append(problems, fmt.Sprintf("at least %d non-alphanumeric character(s)", p.MinNonAlnum))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(problems, ", "))
	}
	return nil
}

// BcryptHasher hashes passwords with bcrypt.
//
// Bulk uploads use a low cost so thousands of rows stay fast; hashes are
// upgraded the first time the user logs in.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

// Matches reports whether hash was produced from plaintext.
func (h BcryptHasher) Matches(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
