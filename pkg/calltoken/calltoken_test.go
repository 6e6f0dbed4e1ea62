package calltoken

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMint(t *testing.T) {
	now := time.Now()

	t.Run("round_trip", func(t *testing.T) {
		token, err := Mint("key-1", "secret", "anon-abc", time.Hour, now)
		require.NoError(t, err)

		claims, err := Parse(token, "secret")
		require.NoError(t, err)
		assert.Equal(t, "anon-abc", claims.UserID)
		assert.Equal(t, "user/anon-abc", claims.Subject)
		assert.Equal(t, "key-1", claims.APIKey)
		assert.Equal(t, now.Add(-time.Minute).Unix(), claims.IssuedAt.Unix())
		assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("wrong_secret", func(t *testing.T) {
		token, err := Mint("key-1", "secret", "anon-abc", time.Hour, now)
		require.NoError(t, err)
		_, err = Parse(token, "other")
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := Mint("key-1", "secret", "anon-abc", time.Minute, now.Add(-2*time.Hour))
		require.NoError(t, err)
		_, err = Parse(token, "secret")
		require.Error(t, err)
	})

	t.Run("empty_user", func(t *testing.T) {
		_, err := Mint("key-1", "secret", "", time.Hour, now)
		require.Error(t, err)
	})

	t.Run("empty_secret", func(t *testing.T) {
		_, err := Mint("key-1", "", "anon-abc", time.Hour, now)
		require.True(t, errors.Is(err, ErrEmptySecret))
	})
}
