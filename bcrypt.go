package authmanagement

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptAuthenticator is the default PasswordAuthenticator.
type BcryptAuthenticator struct {
	// Cost is the bcrypt work factor. Zero uses the package default.
	Cost int
}

// NewBcryptAuthenticator returns an authenticator with the default cost.
func NewBcryptAuthenticator() *BcryptAuthenticator {
	return &BcryptAuthenticator{Cost: passwordHashCost()}
}

// HashPassword will generate a password hash
func (b *BcryptAuthenticator) HashPassword(password string) (string, error) {
	if password == "" {
		return "", newError(ErrHashFailure, map[string]any{"reason": "empty password"})
	}

	cost := passwordHashCost()
	if b != nil && b.Cost != 0 {
		cost = b.Cost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", wrapError(err, ErrHashFailure, nil)
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b *BcryptAuthenticator) ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return newError(ErrIncorrectPassword, map[string]any{"reason": "no password set"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return newError(ErrIncorrectPassword, nil)
		}
		return wrapError(err, ErrHashFailure, nil)
	}
	return nil
}
