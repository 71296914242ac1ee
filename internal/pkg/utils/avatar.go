package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const defaultAvatarSize = 200

// AvatarURL returns the Gravatar image for email. Gravatar accepts SHA-256
// hashes of the trimmed, lowercased address. Empty emails get the generic
// placeholder.
func AvatarURL(email string, size int) string {
	if size <= 0 {
		size = defaultAvatarSize
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Sprintf("https://www.gravatar.com/avatar/?s=%d&d=mp", size)
	}
	sum := sha256.Sum256([]byte(email))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=mp", hex.EncodeToString(sum[:]), size)
}
