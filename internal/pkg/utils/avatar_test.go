package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvatarURL(t *testing.T) {
	a := AvatarURL("  Student@Example.com ", 0)
	b := AvatarURL("student@example.com", 200)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "https://www.gravatar.com/avatar/"))
	assert.Contains(t, a, "?s=200&d=mp")

	hash := strings.TrimPrefix(strings.Split(a, "?")[0], "https://www.gravatar.com/avatar/")
	assert.Len(t, hash, 64)

	assert.Contains(t, AvatarURL("x@example.com", 80), "s=80")
	assert.Equal(t, "https://www.gravatar.com/avatar/?s=200&d=mp", AvatarURL("", 0))
}
