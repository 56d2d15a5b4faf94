// Package auth implements C5: staff JWT issuance/verification and the
// student LMS-session lifecycle, including at-rest encryption of the
// student's Moodle token (spec §4.5, §9).
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// keyID prefixes every ciphertext so a future key rotation can keep
// decrypting tokens sealed under an older key (spec §9 design note).
const keyID byte = 1

// aeadKeySize is the AES-256 key length spec §4.5/§6 require.
const aeadKeySize = 32

// Sealer encrypts/decrypts student LMS tokens at rest with AES-256-GCM,
// per spec §4.5.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key (spec §6 ENCRYPTION_KEY).
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != aeadKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", aeadKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build aes-gcm AEAD: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext, returning keyID || nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, keyID)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 1+s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	if sealed[0] != keyID {
		return nil, fmt.Errorf("unrecognized key id %d", sealed[0])
	}
	nonce := sealed[1 : 1+s.aead.NonceSize()]
	ciphertext := sealed[1+s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed value: %w", err)
	}
	return plaintext, nil
}
