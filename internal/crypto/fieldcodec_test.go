package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewCodecKeyLength(t *testing.T) {
	_, err := NewCodec(make([]byte, 16))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))

	_, err = NewCodec(testKey(t))
	require.NoError(t, err)
}

func TestKeyFromString(t *testing.T) {
	raw := testKey(t)
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		value   string
		want    []byte
		wantErr bool
	}{
		{name: "plain base64", value: encoded, want: raw},
		{name: "with prefix", value: "base64:" + encoded, want: raw},
		{name: "empty", value: "", wantErr: true},
		{name: "not base64", value: "!!!", wantErr: true},
		{name: "wrong length", value: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := KeyFromString(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	for _, plaintext := range []string{
		"",
		"a",
		"exactly sixteen!",
		`[{"name":"Mustermann","telefon":"+43 123 456"}]`,
		strings.Repeat("x", 1000),
	} {
		encrypted, err := codec.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Contains(t, encrypted, ":")

		decrypted, err := codec.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	first, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	for _, encrypted := range []string{first, second} {
		decrypted, err := codec.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, "same plaintext", decrypted)
	}
}

func TestDecryptMissingDelimiterYieldsEmpty(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	decrypted, err := codec.Decrypt("novalidseparator")
	require.NoError(t, err)
	assert.Equal(t, "", decrypted)
}

func TestDecryptMalformedValues(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	validIV := base64.StdEncoding.EncodeToString(make([]byte, 16))
	validBlock := base64.StdEncoding.EncodeToString(make([]byte, 16))

	tests := []struct {
		name  string
		value string
	}{
		{name: "iv not base64", value: "!!!:" + validBlock},
		{name: "ciphertext not base64", value: validIV + ":!!!"},
		{name: "short iv", value: base64.StdEncoding.EncodeToString(make([]byte, 8)) + ":" + validBlock},
		{name: "empty ciphertext", value: validIV + ":"},
		{name: "misaligned ciphertext", value: validIV + ":" + base64.StdEncoding.EncodeToString(make([]byte, 17))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrDecryption))
		})
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	encrypted, err := codec.Encrypt("original content")
	require.NoError(t, err)

	// Flip a bit inside the last ciphertext block so the padding check fails.
	ivPart, dataPart, found := strings.Cut(encrypted, ":")
	require.True(t, found)
	raw, err := base64.StdEncoding.DecodeString(dataPart)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := ivPart + ":" + base64.StdEncoding.EncodeToString(raw)

	_, err = codec.Decrypt(tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDecryption))
}

func TestDecryptWrongKey(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	other := testKey(t)
	other[0] ^= 0xff
	otherCodec, err := NewCodec(other)
	require.NoError(t, err)

	encrypted, err := codec.Encrypt("secret record")
	require.NoError(t, err)

	decrypted, err := otherCodec.Decrypt(encrypted)
	if err == nil {
		// CBC with a wrong key occasionally yields valid-looking padding;
		// the plaintext still never matches.
		assert.NotEqual(t, "secret record", decrypted)
	} else {
		assert.True(t, errors.Is(err, apperr.ErrDecryption))
	}
}

func TestEncryptDecryptJSON(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	doc := []map[string]any{{"name": "Mustermann", "status": float64(3)}}
	encrypted, err := codec.EncryptJSON(doc)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, codec.DecryptJSON(encrypted, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestDecryptJSONEmptyValueLeavesZero(t *testing.T) {
	codec, err := NewCodec(testKey(t))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, codec.DecryptJSON("legacyvalue", &decoded))
	assert.Nil(t, decoded)

	encrypted, err := codec.Encrypt("")
	require.NoError(t, err)
	require.NoError(t, codec.DecryptJSON(encrypted, &decoded))
	assert.Nil(t, decoded)
}
