// Package auth keeps the mock backend's accounts as bcrypt hashes.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Accounts maps usernames to password hashes. An empty set accepts any
// non-empty credentials.
type Accounts struct {
	hashes map[string]string
}

// NewAccounts hashes the given username/password pairs.
func NewAccounts(users map[string]string) (*Accounts, error) {
	a := &Accounts{hashes: make(map[string]string, len(users))}
	for usr, pwd := range users {
		h, err := HashPassword(pwd)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", usr, err)
		}
		a.hashes[usr] = h
	}
	return a, nil
}

// Check reports whether usr may log in with pwd.
func (a *Accounts) Check(usr, pwd string) bool {
	if usr == "" || pwd == "" {
		return false
	}
	if len(a.hashes) == 0 {
		return true
	}
	h, ok := a.hashes[usr]
	return ok && CheckPasswordHash(pwd, h)
}
