// Package keys loads the service signing key and the record encryption key.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// EncryptionKeySize is the length of the record encryption key.
const EncryptionKeySize = 32

// ErrNoServiceKey is returned when neither a keypair file nor an encoded key
// is configured.
var ErrNoServiceKey = errors.New("no service keypair configured")

// LoadServiceKey reads the service keypair from a solana-keygen JSON file or,
// when path is empty, from a base58-encoded secret.
func LoadServiceKey(path, encoded string) (solana.PrivateKey, error) {
	switch {
	case path != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keypair file %s: %w", path, err)
		}
		return key, nil
	case encoded != "":
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("decode base58 keypair: %w", err)
		}
		return key, nil
	}
	return nil, ErrNoServiceKey
}

// ParseEncryptionKey decodes a hex-encoded 32-byte key.
func ParseEncryptionKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", EncryptionKeySize, len(key))
	}
	return key, nil
}
