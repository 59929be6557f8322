package util

import (
	"crypto/rand"
	"encoding/base64"
)

// InviteTokenBytes is the entropy of an invite token (192 bits).
const InviteTokenBytes = 24

// GenerateToken creates a cryptographically secure, URL-safe random token
// from n random bytes.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
