package identity

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCallUserID(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		want      string
	}{
		{"uuid", "3f2a9c1e-7b44-4d2a-9e1f-0a1b2c3d4e5f", "anon-3f2a9c1e7b44"},
		{"short", "ab-cd", "anon-abcd"},
		{"empty", "", ""},
		{"only_separators", "----", ""},
		{"mixed_separators", "AB_CD.EF:12 34-5678", "anon-ABCDEF123456"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveCallUserID(tc.sessionID))
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		id := "11111111-2222-3333-4444-555555555555"
		assert.Equal(t, DeriveCallUserID(id), DeriveCallUserID(id))
	})
}

func TestGenerateMAC(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		mac, err := GenerateMAC()
		require.NoError(t, err)
		assert.True(t, ValidMAC(mac), mac)
	})

	t.Run("fixed_source", func(t *testing.T) {
		mac, err := generateMAC(bytes.NewReader([]byte{0x00, 0x1a, 0xff, 0x10, 0xab, 0x09}))
		require.NoError(t, err)
		assert.Equal(t, "00:1A:FF:10:AB:09", mac)
	})

	t.Run("short_source", func(t *testing.T) {
		_, err := generateMAC(bytes.NewReader([]byte{1, 2}))
		require.Error(t, err)
	})

	t.Run("validate", func(t *testing.T) {
		assert.False(t, ValidMAC("00:1a:FF:10:AB:09"))
		assert.False(t, ValidMAC("001AFF10AB09"))
		assert.False(t, ValidMAC(""))
	})
}
