package randcode

import (
	"crypto/rand"
	"fmt"
)

const (
	Numeric      = "0123456789"
	Alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generate returns length characters drawn uniformly from alphabet using
// crypto/rand. Bytes at or above the largest multiple of len(alphabet) are
// rejected so no character is favoured.
func Generate(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length: %d", length)
	}
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return "", fmt.Errorf("invalid alphabet size: %d", len(alphabet))
	}

	limit := 256 - 256%len(alphabet)
	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

// Digits returns a numeric code of n digits, leading zeros included.
func Digits(n int) (string, error) {
	return Generate(Numeric, n)
}
