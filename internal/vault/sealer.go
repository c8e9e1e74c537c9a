package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// sealer encrypts original values before they reach backend storage and
// decrypts them on the way back out. AES-256-GCM with a random nonce
// prepended to the ciphertext.
type sealer struct {
	aead cipher.AEAD
}

// newSealer derives a 256-bit key from the configured secret. An empty
// secret is rejected: entries must be encrypted at rest.
func newSealer(secret string) (*sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("vault encryption key is required")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal encrypts a value, binding it to its session and token so a ciphertext
// moved to another key fails to open.
func (s *sealer) seal(sessionID, token, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	aad := []byte(sessionID + "|" + token)
	sealed := s.aead.Seal(nonce, nonce, []byte(value), aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a sealed value.
func (s *sealer) open(sessionID, token, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("malformed sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	aad := []byte(sessionID + "|" + token)
	plain, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plain), nil
}
