package guests

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenLength is the number of random bytes behind every invite token.
const TokenLength = 32

// GenerateToken returns a URL-safe invite token backed by TokenLength random bytes.
func GenerateToken() (string, error) {
	buffer := make([]byte, TokenLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("guests: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
