// ABOUTME: Tests for the token vault
// ABOUTME: Covers round trips, tamper detection, malformed tokens, and key configuration errors
package vault

import (
	"strings"
	"testing"

	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func fixedKey(k string) func() string {
	return func() string { return k }
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New(fixedKey(testKey))

	for _, plaintext := range []string{"", "hello", `{"access_token":"ya29","refresh_token":"1//x"}`, strings.Repeat("ünïcødé ", 200)} {
		token, err := v.Encrypt(plaintext)
		require.NoError(t, err)

		parts := strings.Split(token, ":")
		require.Len(t, parts, 3)
		assert.Len(t, parts[0], 24, "nonce should be 12 bytes")
		assert.Len(t, parts[1], 32, "tag should be 16 bytes")

		got, err := v.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := New(fixedKey(testKey))

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptDetectsTampering(t *testing.T) {
	v := New(fixedKey(testKey))
	token, err := v.Encrypt("secret payload")
	require.NoError(t, err)

	parts := strings.Split(token, ":")
	flip := func(s string) string {
		b := []byte(s)
		if b[0] == '0' {
			b[0] = '1'
		} else {
			b[0] = '0'
		}
		return string(b)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"nonce", flip(parts[0]) + ":" + parts[1] + ":" + parts[2]},
		{"tag", parts[0] + ":" + flip(parts[1]) + ":" + parts[2]},
		{"ciphertext", parts[0] + ":" + parts[1] + ":" + flip(parts[2])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.token)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	token, err := New(fixedKey(testKey)).Encrypt("payload")
	require.NoError(t, err)

	other := New(fixedKey(strings.Repeat("ab", 32)))
	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecryptMalformedAndCorrupt(t *testing.T) {
	v := New(fixedKey(testKey))
	nonce := strings.Repeat("00", 12)
	tag := strings.Repeat("00", 16)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMalformed},
		{"two segments", nonce + ":" + tag, ErrMalformed},
		{"four segments", nonce + ":" + tag + ":00:00", ErrMalformed},
		{"short nonce", "0000:" + tag + ":00", ErrCorrupt},
		{"short tag", nonce + ":0000:00", ErrCorrupt},
		{"bad hex", nonce + ":" + tag + ":zz", ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestKeyConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"too short", "abcd"},
		{"not hex", strings.Repeat("zz", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(fixedKey(tt.key))
			assert.ErrorIs(t, v.Check(), config.ErrConfiguration)
			_, err := v.Encrypt("x")
			assert.ErrorIs(t, err, config.ErrConfiguration)
			_, err = v.Decrypt("a:b:c")
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestKeyReadAtCallTime(t *testing.T) {
	key := ""
	v := New(func() string { return key })
	assert.Error(t, v.Check())

	key = testKey
	assert.NoError(t, v.Check())
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvKey, testKey)
	token, err := FromEnv().Encrypt("env")
	require.NoError(t, err)

	got, err := FromEnv().Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "env", got)
}

func TestSealOpenBundle(t *testing.T) {
	v := New(fixedKey(testKey))
	bundle := &models.CredentialBundle{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		ExpiryDate:   1700000000000,
		TokenType:    "Bearer",
	}

	token, err := v.SealBundle(bundle)
	require.NoError(t, err)
	assert.NotContains(t, token, "ya29")

	got, err := v.OpenBundle(token)
	require.NoError(t, err)
	assert.Equal(t, bundle, got)
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
	assert.NoError(t, New(fixedKey(key)).Check())
}
