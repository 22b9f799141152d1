package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const minActionCodeBytes = 16

// GenerateActionCode returns an opaque URL-safe code for out-of-band
// actions such as password reset links.
func GenerateActionCode(byteLen int) (string, error) {
	if byteLen < minActionCodeBytes {
		return "", fmt.Errorf("action code needs at least %d bytes, got %d", minActionCodeBytes, byteLen)
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate action code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
