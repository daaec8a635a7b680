package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of password. A cost of zero uses
// bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password against a stored hash. Accounts created
// before bcrypt carry an unsalted sha256 hex digest; those still match but
// report upgrade=true so the caller can rehash.
func CheckPassword(stored, password string) (ok, upgrade bool) {
	if isLegacyHash(stored) {
		digest := LegacyHash(password)
		return subtle.ConstantTimeCompare([]byte(digest), []byte(stored)) == 1, true
	}
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, false
	}
	return err == nil, false
}

// LegacyHash produces the pre-bcrypt digest format.
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func isLegacyHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
