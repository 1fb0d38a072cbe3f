package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// DefaultChallengeSkew bounds how far a login timestamp may drift from the
// server clock in either direction.
const DefaultChallengeSkew = 5 * time.Minute

var (
	ErrMalformedPublicKey = errors.New("malformed public key")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrStaleChallenge     = errors.New("login timestamp outside the accepted window")
	ErrBadSignature       = errors.New("signature does not match public key")
)

// LoginMessage is the exact text a wallet signs to log in.
func LoginMessage(timestamp int64) string {
	return fmt.Sprintf("Timestamp: %d", timestamp)
}

// VerifyLogin checks that signature (base58) is the wallet's signature over
// LoginMessage(timestamp) and that timestamp is within skew of now.
func VerifyLogin(publicKey, signature string, timestamp int64, now time.Time, skew time.Duration) (solana.PublicKey, error) {
	wallet, err := solana.PublicKeyFromBase58(publicKey)
	if err != nil {
		return solana.PublicKey{}, ErrMalformedPublicKey
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return solana.PublicKey{}, ErrMalformedSignature
	}
	if skew <= 0 {
		skew = DefaultChallengeSkew
	}
	drift := now.Sub(time.Unix(timestamp, 0))
	if drift > skew || drift < -skew {
		return solana.PublicKey{}, ErrStaleChallenge
	}
	if !sig.Verify(wallet, []byte(LoginMessage(timestamp))) {
		return solana.PublicKey{}, ErrBadSignature
	}
	return wallet, nil
}
