package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/core/token"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("token has sufficient length", func(t *testing.T) {
		t.Parallel()

		tok, err := token.Generate()
		require.NoError(t, err)
		// 32 bytes of entropy encode to 43 base64url characters.
		assert.GreaterOrEqual(t, len(tok), 32)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]struct{}, 1000)
		for range 1000 {
			tok, err := token.Generate()
			require.NoError(t, err)

			_, dup := seen[tok]
			require.False(t, dup, "generated token collided: %s", tok)
			seen[tok] = struct{}{}
		}
	})
}

func TestHash(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		tok, err := token.Generate()
		require.NoError(t, err)
		assert.Equal(t, token.Hash(tok), token.Hash(tok))
	})

	t.Run("distinct tokens hash differently", func(t *testing.T) {
		t.Parallel()

		t1, err := token.Generate()
		require.NoError(t, err)
		t2, err := token.Generate()
		require.NoError(t, err)

		require.NotEqual(t, t1, t2)
		assert.NotEqual(t, token.Hash(t1), token.Hash(t2))
	})

	t.Run("hash never equals the raw token", func(t *testing.T) {
		t.Parallel()

		tok, err := token.Generate()
		require.NoError(t, err)
		assert.NotEqual(t, tok, token.Hash(tok))
	})
}

func TestEqual(t *testing.T) {
	t.Parallel()

	t.Run("equal secrets", func(t *testing.T) {
		t.Parallel()
		assert.True(t, token.Equal("secret-value", "secret-value"))
	})

	t.Run("different secrets", func(t *testing.T) {
		t.Parallel()
		assert.False(t, token.Equal("secret-value", "secret-other"))
	})

	t.Run("different lengths", func(t *testing.T) {
		t.Parallel()
		assert.False(t, token.Equal("short", "a-much-longer-secret"))
	})

	t.Run("empty values are equal", func(t *testing.T) {
		t.Parallel()
		assert.True(t, token.Equal("", ""))
	})
}

func TestVerifyEntropy(t *testing.T) {
	t.Parallel()

	require.NoError(t, token.VerifyEntropy())
}
