package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyCredential = errors.New("credential is empty")

// AuthCodeHasher produces the digest stored in an order's auth_code column so the raw
// bearer credential is never persisted.
type AuthCodeHasher struct {
	cost int
}

func NewAuthCodeHasher(cost int) *AuthCodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthCodeHasher{cost: cost}
}

// Digest hashes a credential using bcrypt. Credentials are pre-hashed with SHA-256
// because bcrypt only reads the first 72 bytes and JWTs are longer.
func (h *AuthCodeHasher) Digest(credential string) (string, error) {
	if credential == "" {
		return "", ErrEmptyCredential
	}

	hash, err := bcrypt.GenerateFromPassword(prehash(credential), h.cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Matches compares a credential with its digest
func (h *AuthCodeHasher) Matches(credential, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), prehash(credential))
	return err == nil
}

func prehash(credential string) []byte {
	sum := sha256.Sum256([]byte(credential))
	return []byte(hex.EncodeToString(sum[:]))
}
