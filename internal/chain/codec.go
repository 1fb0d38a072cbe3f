package chain

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// EncodeTransaction serialises tx to the base64 wire form exchanged with
// clients.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	PadSignatures(tx)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses the base64 wire form.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if tx.Message.Header.NumRequiredSignatures == 0 {
		return nil, fmt.Errorf("decode transaction: %w", ErrNoSigners)
	}
	if len(tx.Message.AccountKeys) < int(tx.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("decode transaction: header requires %d signers but message has %d keys",
			tx.Message.Header.NumRequiredSignatures, len(tx.Message.AccountKeys))
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("decode transaction: %d signatures for %d required signers",
			len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	return tx, nil
}

// RequiredSigners returns the accounts whose signatures the message requires,
// in signature order.
func RequiredSigners(tx *solana.Transaction) []solana.PublicKey {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Message.AccountKeys) {
		n = len(tx.Message.AccountKeys)
	}
	return []solana.PublicKey(tx.Message.AccountKeys[:n])
}

// PadSignatures sizes the signature list to the number of required signers,
// leaving unsigned slots zero.
func PadSignatures(tx *solana.Transaction) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) == n {
		return
	}
	sigs := make([]solana.Signature, n)
	copy(sigs, tx.Signatures)
	tx.Signatures = sigs
}

// SignAs adds key's signature over the message to its slot, leaving every
// other slot and the message bytes untouched.
func SignAs(tx *solana.Transaction, key solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	PadSignatures(tx)
	pub := key.PublicKey()
	for i, signer := range RequiredSigners(tx) {
		if !signer.Equals(pub) {
			continue
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign message: %w", err)
		}
		tx.Signatures[i] = sig
		return nil
	}
	return fmt.Errorf("%s is not a required signer of this transaction", pub)
}

// VerifySignatures checks that every required signer has a signature that
// verifies against the message bytes.
func VerifySignatures(tx *solana.Transaction) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	signers := RequiredSigners(tx)
	if len(signers) == 0 {
		return fmt.Errorf("%w: %w", ErrSignatureVerification, ErrNoSigners)
	}
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("%w: %d signatures for %d signers", ErrSignatureVerification, len(tx.Signatures), len(signers))
	}
	for i, signer := range signers {
		sig := tx.Signatures[i]
		if sig == (solana.Signature{}) {
			return &MissingSignatureError{Signer: signer}
		}
		if !sig.Verify(signer, msg) {
			return fmt.Errorf("%w: signer %s", ErrSignatureVerification, signer)
		}
	}
	return nil
}
