package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strivehq/hookgate/internal/auth"
)

func TestHashKey(t *testing.T) {
	t.Run("deterministic across calls", func(t *testing.T) {
		assert.Equal(t, auth.HashKey("sk_abc123"), auth.HashKey("sk_abc123"))
	})

	t.Run("known vector", func(t *testing.T) {
		// SHA-256("hello")
		assert.Equal(t,
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
			auth.HashKey("hello"))
	})

	t.Run("fixed-length hex output", func(t *testing.T) {
		assert.Len(t, auth.HashKey(""), 64)
		assert.Len(t, auth.HashKey("a much longer secret value than usual"), 64)
	})

	t.Run("different inputs differ", func(t *testing.T) {
		assert.NotEqual(t, auth.HashKey("sk_one"), auth.HashKey("sk_two"))
	})
}
