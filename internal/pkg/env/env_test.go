package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	withEnv(t, map[string]string{"EDU_TEST_KEY": "from-file"})
	t.Setenv("EDU_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("EDU_TEST_KEY", "def"))
}

func TestGetEnvFallsBackToOS(t *testing.T) {
	withEnv(t, map[string]string{})
	t.Setenv("EDU_TEST_KEY", "from-os")

	assert.Equal(t, "from-os", GetEnv("EDU_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("EDU_TEST_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	withEnv(t, map[string]string{
		"INT_OK":       "42",
		"INT_BAD":      "forty-two",
		"BOOL_OK":      "true",
		"BOOL_BAD":     "yes please",
		"DURATION_OK":  "15m",
		"DURATION_BAD": "-5s",
	})

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("INT_MISSING", 7))

	assert.True(t, GetEnvBool("BOOL_OK", false))
	assert.False(t, GetEnvBool("BOOL_BAD", false))

	assert.Equal(t, 15*time.Minute, GetEnvDuration("DURATION_OK", time.Hour))
	assert.Equal(t, time.Hour, GetEnvDuration("DURATION_BAD", time.Hour))
	assert.Equal(t, time.Hour, GetEnvDuration("DURATION_MISSING", time.Hour))
}
