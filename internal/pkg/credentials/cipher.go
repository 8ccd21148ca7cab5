package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const tokenKeyInfo = "clubdues provider tokens v1"

// TokenCipher seals provider tokens at rest with XChaCha20-Poly1305. The
// tenant and provider are bound as associated data so a ciphertext cannot be
// moved to another connection row.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the encryption key from secret with HKDF-SHA256.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if len(secret) < 16 {
		return nil, errors.New("token encryption secret must be at least 16 characters")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (c *TokenCipher) Seal(plaintext, tenantID, provider string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), associatedData(tenantID, provider))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (c *TokenCipher) Open(sealed, tenantID, provider string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", errors.New("sealed token too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, associatedData(tenantID, provider))
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}

func associatedData(tenantID, provider string) []byte {
	return []byte(tenantID + "\x00" + provider)
}
