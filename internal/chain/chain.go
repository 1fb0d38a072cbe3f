// Package chain is the ledger client used by the gateway. Client is
// implemented by RPCClient against a live cluster and by Simulator, an
// in-memory ledger that executes the medical-record program directly.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAnchorExpired means the transaction's recent blockhash is no longer
	// accepted by the ledger. The transaction must be prepared again.
	ErrAnchorExpired = errors.New("transaction anchor expired")
	// ErrAlreadyProcessed is returned for a transaction the ledger has seen.
	ErrAlreadyProcessed = errors.New("transaction already processed")
	// ErrSignatureVerification is returned when a signature does not verify.
	ErrSignatureVerification = errors.New("signature verification failed")
	// ErrNoSigners is returned for a message that requires no signatures. The
	// fee payer always signs, so such a message is malformed.
	ErrNoSigners = errors.New("message requires no signers")
	// ErrConfirmTimeout is returned when a submitted transaction is not
	// confirmed in time.
	ErrConfirmTimeout = errors.New("timed out waiting for confirmation")
)

// Anchor is the recent blockhash a transaction is bound to, together with
// the last block height at which it remains valid.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// AccountInfo is a fetched account.
type AccountInfo struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Data    []byte
}

// MemcmpFilter selects program accounts whose data contains Bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// Client is the subset of ledger RPC the gateway needs.
type Client interface {
	LatestAnchor(ctx context.Context) (*Anchor, error)
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetProgramAccounts(ctx context.Context, programID solana.PublicKey, filter MemcmpFilter) ([]*AccountInfo, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// TxError is a transaction that the ledger executed and rejected.
type TxError struct {
	Signature   solana.Signature
	Instruction int
	Err         error
	Logs        []string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed at instruction %d: %v", e.Signature, e.Instruction, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// MissingSignatureError is returned when a required signer has not signed.
type MissingSignatureError struct {
	Signer solana.PublicKey
}

func (e *MissingSignatureError) Error() string {
	return fmt.Sprintf("missing signature for required signer %s", e.Signer)
}
