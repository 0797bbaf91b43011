// Package authsvc implements the two opaque collaborators spec.md §6 calls
// out as external services: password verification and login-token signing.
// Both are out of the core's scope to *design* (the spec treats them as
// boundaries) but still need a concrete local implementation to run the
// server end to end, grounded on the hashing and signing libraries the rest
// of the retrieval pack already uses.
package authsvc

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when a password does not match its stored hash.
var ErrMismatch = errors.New("authsvc: password does not match")

// PasswordVerifier is the opaque verifier interface spec.md §6 calls for
// (Password.Verify(hash, password) -> Ok | Mismatch).
type PasswordVerifier interface {
	Verify(hash, password string) error
	Hash(password string) (string, error)
}

// BcryptVerifier is the local PasswordVerifier implementation.
type BcryptVerifier struct {
	Cost int
}

// NewBcryptVerifier returns a verifier using bcrypt.DefaultCost.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{Cost: bcrypt.DefaultCost}
}

// Verify reports whether password matches hash, mapping bcrypt's mismatch
// error onto the package's own sentinel so callers can errors.Is against it
// regardless of the underlying hashing library.
func (v *BcryptVerifier) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("authsvc: verify: %w", err)
	}
	return nil
}

// Hash produces a new bcrypt hash for password, used by the out-of-core
// registration flow and by tests that need a valid stored hash.
func (v *BcryptVerifier) Hash(password string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("authsvc: hash: %w", err)
	}
	return string(b), nil
}
