package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// Prefix marks a sealed value.
const Prefix = "enc:v1:"

// Cipher seals and opens strings for one purpose.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the purpose key from master.
func NewCipher(master []byte, purpose string) (*Cipher, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKey
	}
	if purpose == "" {
		return nil, ErrMissingPurpose
	}

	key, err := deriveKey(master, purpose)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext. Empty and already sealed values are returned
// unchanged.
func (c *Cipher) Seal(plaintext string) (string, error) {
	if plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed value. Values without Prefix are returned as is.
func (c *Cipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
