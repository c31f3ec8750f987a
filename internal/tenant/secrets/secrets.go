package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Generate creates a cryptographically secure random API key.
// Returns a base64-encoded string handed to the tenant exactly once.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the hex BLAKE2b-256 digest of an API key. Only the digest
// is stored; ingress resolution looks tenants up by it, so it must be
// deterministic (unlike a salted password hash).
func Digest(apiKey string) string {
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
