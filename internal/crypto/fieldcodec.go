// Package crypto implements record-level encryption of persisted field
// values. Sensitive JSON columns are stored as "base64(iv):base64(ciphertext)"
// using AES-256-CBC with a single process-wide key, the format shared with
// the web interface that owns the same database.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
)

// Codec encrypts and decrypts individual field values. It is stateless apart
// from the key and safe for concurrent use.
type Codec struct {
	key []byte
}

// NewCodec creates a Codec from a raw 256-bit key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: field encryption key must be 32 bytes, got %d", apperr.ErrConfiguration, len(key))
	}
	return &Codec{key: key}, nil
}

// KeyFromString decodes a base64-encoded 256-bit key as found in the APP_KEY
// configuration value. An optional "base64:" prefix is accepted.
func KeyFromString(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: field encryption key is not set", apperr.ErrConfiguration)
	}
	s = strings.TrimPrefix(s, "base64:")
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: field encryption key is not valid base64: %v", apperr.ErrConfiguration, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: field encryption key must decode to 32 bytes, got %d", apperr.ErrConfiguration, len(key))
	}
	return key, nil
}

// Encrypt encrypts a plaintext string into the persisted representation.
// A fresh random IV is generated on every call, so encrypting the same
// plaintext twice never yields the same output.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A value without the ":" delimiter decrypts to
// the empty string: legacy rows contain such values and the web interface
// treats them as empty fields, so this is a defined outcome rather than an
// error. Any other malformation (bad base64, misaligned ciphertext, invalid
// padding) reports apperr.ErrDecryption; callers treat the field as absent.
func (c *Codec) Decrypt(value string) (string, error) {
	encodedIV, encodedData, found := strings.Cut(value, ":")
	if !found {
		return "", nil
	}

	iv, err := base64.StdEncoding.DecodeString(encodedIV)
	if err != nil {
		return "", fmt.Errorf("%w: iv is not valid base64: %v", apperr.ErrDecryption, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encodedData)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64: %v", apperr.ErrDecryption, err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv has length %d, want %d", apperr.ErrDecryption, len(iv), aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the block size", apperr.ErrDecryption, len(ciphertext))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrDecryption, err)
	}
	return string(unpadded), nil
}

// EncryptJSON marshals v and encrypts the resulting document. This is the
// write half of the persistence bridge: repositories hand over plain Go
// values and never see the encoded form.
func (c *Codec) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal field: %w", err)
	}
	return c.Encrypt(string(data))
}

// DecryptJSON decrypts a stored value and unmarshals it into v. An empty
// decryption result (including the missing-delimiter fallback) leaves v at
// its zero value without error, mirroring an absent field.
func (c *Codec) DecryptJSON(value string, v any) error {
	plaintext, err := c.Decrypt(value)
	if err != nil {
		return err
	}
	if plaintext == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return fmt.Errorf("%w: decrypted value is not valid JSON: %v", apperr.ErrDecryption, err)
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-padding], nil
}
