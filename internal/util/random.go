package util

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n bytes of cryptographic randomness.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
