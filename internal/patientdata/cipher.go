// Package patientdata seals patient payloads for storage on the ledger and
// brokers short-lived view tokens for reading them back.
package patientdata

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealSeparator = "|"

var (
	// ErrMalformedCiphertext is returned when stored data is not in
	// base64(ciphertext)|base64(nonce) form.
	ErrMalformedCiphertext = errors.New("malformed encrypted data")
	// ErrDecrypt is returned when authentication fails.
	ErrDecrypt = errors.New("decryption failed")
)

// Sealer encrypts with ChaCha20-Poly1305 under a fixed 256-bit key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer returns a Sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := s.aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ct) + sealSeparator + base64.StdEncoding.EncodeToString(nonce), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	ctPart, noncePart, ok := strings.Cut(sealed, sealSeparator)
	if !ok {
		return nil, ErrMalformedCiphertext
	}
	ct, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformedCiphertext, err)
	}
	if len(nonce) != s.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrMalformedCiphertext, len(nonce))
	}
	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// SealPayload validates and seals p.
func (s *Sealer) SealPayload(p *Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	raw, err := p.Marshal()
	if err != nil {
		return "", err
	}
	return s.Seal(raw)
}

// OpenPayload opens sealed data and parses it as a Payload.
func (s *Sealer) OpenPayload(sealed string) (*Payload, error) {
	raw, err := s.Open(sealed)
	if err != nil {
		return nil, err
	}
	return ParsePayload(raw)
}
