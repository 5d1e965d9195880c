package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// AESGCMCoder is a Coder backed by AES-GCM: the given key becomes the AES
// key, and each record is its own nonce plus sealed ciphertext. No
// authentication mechanism in this module installs it; every handshake
// currently yields Passthrough.
type AESGCMCoder struct {
	aead cipher.AEAD
}

// NewAESGCMCoder derives an AEAD from key, which must be 16, 24, or 32
// bytes (AES-128/192/256).
func NewAESGCMCoder(key []byte) (*AESGCMCoder, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: aes key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: gcm: %w", err)
	}
	return &AESGCMCoder{aead: aead}, nil
}

func (c *AESGCMCoder) Encode(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("security: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AESGCMCoder) Decode(record []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(record) < nonceSize {
		return nil, fmt.Errorf("security: record shorter than nonce size %d", nonceSize)
	}
	nonce, ciphertext := record[:nonceSize], record[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
