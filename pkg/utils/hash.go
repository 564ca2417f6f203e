package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashOrRead returns password unchanged when it already is a bcrypt hash (so secrets can
// be provisioned pre-hashed), otherwise its bcrypt hash.
func HashOrRead(password string) ([]byte, error) {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(password, prefix) {
			return []byte(password), nil
		}
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash []byte, password string) bool {
	return len(hash) > 0 && bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
