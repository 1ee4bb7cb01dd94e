// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateDownloadToken returns a 256-bit token, hex encoded (64 chars).
func GenerateDownloadToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateAccessCode returns a short uppercase hex secret (24 bits of
// entropy) meant to travel out-of-band from the token itself.
func GenerateAccessCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// GenerateLicenseKey returns a key in the XXXX-XXXX-XXXX-XXXX format: four
// 16-bit groups, uppercase hex.
func GenerateLicenseKey() (string, error) {
	segments := make([]string, 4)
	for i := range segments {
		b := make([]byte, 2)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		segments[i] = strings.ToUpper(hex.EncodeToString(b))
	}
	return strings.Join(segments, "-"), nil
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// WatermarkHash derives the traceability hash embedded in high-value
// deliveries. Unpredictable (issuance time is part of the input) but stable
// once issued.
func WatermarkHash(customerEmail, orderID string, issuedAt time.Time) string {
	sum := HashString(fmt.Sprintf("%s-%s-%d", customerEmail, orderID, issuedAt.UnixNano()))
	return sum[:16]
}
