package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword generates a salted bcrypt hash for a local account password.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if cost <= 0 {
		cost = defaultBcryptCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash validates the given cleartext password against the
// stored hash. bcrypt's comparison is constant-time over the hash.
func ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
