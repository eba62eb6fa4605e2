package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RoundTrip(t *testing.T) {
	v, err := New("server-secret")
	require.NoError(t, err)

	token, err := v.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, token, "hunter2")

	again, err := v.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, token, again, "nonce must differ per call")

	plain, err := v.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestVault_DecryptErrors(t *testing.T) {
	v, err := New("server-secret")
	require.NoError(t, err)
	other, err := New("another-secret")
	require.NoError(t, err)

	token, err := v.Encrypt("hunter2")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.URLEncoding.EncodeToString(raw)

	tests := []struct {
		name  string
		vault *Vault
		token string
	}{
		{"wrong key", other, token},
		{"not base64", v, "!!not-base64!!"},
		{"too short", v, "AAAA"},
		{"tampered", v, tampered},
		{"empty", v, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.vault.Decrypt(tt.token)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestNew_EmptyPassphrase(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty"))
}
