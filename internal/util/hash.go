package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// HashString is used to store user tokens at rest.
func HashString(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// NewUserToken returns a fresh bearer token for a user policy.
func NewUserToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "usr_" + hex.EncodeToString(b), nil
}
