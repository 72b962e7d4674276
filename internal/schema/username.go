package schema

import "strings"

// Reserved account names. These accounts can never be deleted, and guest can
// never be created or updated through an upload.
const (
	AdminUsername = "admin"
	GuestUsername = "guest"
)

// Standardise cleans a username to the allowed grammar: trimmed, lower-case,
// restricted to letters, digits and the characters _ . @ -.
func Standardise(username string) string {
	username = strings.ToLower(strings.TrimSpace(username))

	var b strings.Builder
	b.Grow(len(username))
	for _, r := range username {
		if isUsernameRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidUsername reports whether username already matches the allowed grammar.
func ValidUsername(username string) bool {
	return username != "" && username == Standardise(username)
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '@', r == '-':
		return true
	default:
		return false
	}
}
