// Package hashing provides one-way digests used to keep raw prompts and user
// identifiers out of metric records.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashPrompt digests prompt content for metric keys.
func HashPrompt(prompt string) string {
	return Hash(prompt)
}

// HashUserID digests a user identifier. Empty ids stay empty so optional
// fields remain omitted.
func HashUserID(userID string) string {
	if userID == "" {
		return ""
	}
	return Hash(userID)
}
