package identity

import "time"

// Identity is a registered user able to sign in with a password and a code
// sent to their phone.
type Identity struct {
	ID           string
	Username     string
	Phone        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// IsZero reports whether the identity was never resolved from a store.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Username == ""
}

// Credentials request structure.
type Credentials struct {
	Username string
	Password string
}

// Registration describes a user to be created.
type Registration struct {
	Username string
	Phone    string
	Password string
}
