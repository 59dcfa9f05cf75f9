package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize = 32 // AES-256
	ivSize  = 12 // GCM standard nonce
)

var (
	ErrWeakKey        = errors.New("token encryption key must be at least 32 characters")
	ErrMalformedToken = errors.New("malformed encrypted token")
	ErrDecrypt        = errors.New("token decryption failed")
)

// Cipher encrypts OAuth tokens at rest with AES-256-GCM. Encoded form is
// hex(iv) ":" hex(ciphertext||tag). Safe for concurrent use; the key is never
// mutated after construction.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the key from the first 32 bytes of secret.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) < keySize {
		return nil, ErrWeakKey
	}
	block, err := aes.NewCipher([]byte(secret[:keySize]))
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt uses a fresh random IV on every call.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt authenticates and opens an encoded token. Any failure is total.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing separator", ErrMalformedToken)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrMalformedToken, err)
	}
	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv length %d", ErrMalformedToken, len(iv))
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrMalformedToken, err)
	}
	plain, err := c.aead.Open(nil, iv, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
