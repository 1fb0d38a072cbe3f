// Package signing implements the two-phase protocol in which the gateway
// prepares and partially signs a transaction, the caller adds its own
// signature, and the gateway relays the fully signed result.
//
// No state is kept between the phases: the serialised transaction is the
// only hand-off.
package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

// Config holds the anchor fetch retry policy.
type Config struct {
	AnchorAttempts int
	AnchorDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.AnchorAttempts <= 0 {
		c.AnchorAttempts = 5
	}
	if c.AnchorDelay == 0 {
		c.AnchorDelay = 5 * time.Second
	}
}

// Prepared is the result of the prepare phase.
type Prepared struct {
	SerializedTransaction string          `json:"serialized_transaction"`
	TransactionType       string          `json:"transaction_type"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	Anchor                chain.Anchor    `json:"-"`
}

// RetryFunc is called before each anchor fetch retry.
type RetryFunc func(attempt int, err error)

// Coordinator drives both phases for one service key.
type Coordinator struct {
	chain     chain.Client
	key       solana.PrivateKey
	programID solana.PublicKey
	cfg       Config
	onRetry   RetryFunc
	logger    *zap.Logger
}

// New creates a Coordinator that co-signs with key and only relays
// transactions addressed to programID.
func New(client chain.Client, key solana.PrivateKey, programID solana.PublicKey, cfg Config, logger *zap.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{chain: client, key: key, programID: programID, cfg: cfg, logger: logger}
}

// SetRetryFunc registers a hook invoked on every anchor fetch retry.
func (c *Coordinator) SetRetryFunc(fn RetryFunc) {
	c.onRetry = fn
}

// ServiceKey returns the public half of the co-signing key.
func (c *Coordinator) ServiceKey() solana.PublicKey {
	return c.key.PublicKey()
}

// Prepare builds a transaction for op with payer as fee payer, binds it to a
// fresh anchor and co-signs it when op requires the service key. request is
// echoed back as metadata; pass nil to omit it.
func (c *Coordinator) Prepare(ctx context.Context, payer solana.PublicKey, op *txbuilder.Op, request any) (*Prepared, error) {
	anchor, err := c.FetchAnchor(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction([]solana.Instruction{op.Instruction}, anchor.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, apperr.Internal(err, "failed to build transaction")
	}
	chain.PadSignatures(tx)
	if op.Cosigned {
		if err := chain.SignAs(tx, c.key); err != nil {
			return nil, apperr.Internal(err, "failed to co-sign transaction")
		}
	}

	encoded, err := chain.EncodeTransaction(tx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to serialize transaction")
	}
	out := &Prepared{
		SerializedTransaction: encoded,
		TransactionType:       op.Name,
		Anchor:                *anchor,
	}
	if request != nil {
		meta, err := json.Marshal(request)
		if err != nil {
			return nil, apperr.Internal(err, "failed to encode metadata")
		}
		out.Metadata = meta
	}

	c.logger.Info("transaction prepared",
		zap.String("type", op.Name),
		zap.String("payer", payer.String()),
		zap.Bool("cosigned", op.Cosigned),
		zap.String("blockhash", anchor.Blockhash.String()),
	)
	return out, nil
}

// FetchAnchor returns the latest anchor, retrying with a fixed delay. The
// wait honours ctx.
func (c *Coordinator) FetchAnchor(ctx context.Context) (*chain.Anchor, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.AnchorAttempts; attempt++ {
		anchor, err := c.chain.LatestAnchor(ctx)
		if err == nil {
			return anchor, nil
		}
		lastErr = err
		c.logger.Warn("anchor fetch failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.AnchorAttempts),
			zap.Error(err),
		)
		if attempt == c.cfg.AnchorAttempts {
			break
		}
		if c.onRetry != nil {
			c.onRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Ledger(ctx.Err(), "cancelled while fetching recent blockhash")
		case <-time.After(c.cfg.AnchorDelay):
		}
	}
	return nil, apperr.Ledger(lastErr, fmt.Sprintf("failed to fetch recent blockhash after %d attempts", c.cfg.AnchorAttempts))
}

// Finalize validates a fully signed transaction and relays it. The message is
// never altered: a transaction whose anchor has expired is rejected with
// code anchor_expired and must be prepared again.
func (c *Coordinator) Finalize(ctx context.Context, serialized string) (solana.Signature, error) {
	tx, err := chain.DecodeTransaction(serialized)
	if err != nil {
		return solana.Signature{}, apperr.BadRequest("malformed transaction: %v", err)
	}
	if err := c.checkInstructions(tx); err != nil {
		return solana.Signature{}, err
	}
	if err := chain.VerifySignatures(tx); err != nil {
		var missing *chain.MissingSignatureError
		if errors.As(err, &missing) {
			return solana.Signature{}, apperr.BadRequest("%s", missing.Error()).WithCode(apperr.CodeMissingSignature)
		}
		return solana.Signature{}, apperr.BadRequest("invalid transaction signature").WithCode(apperr.CodeInvalidSignature)
	}

	sig, err := c.chain.SendAndConfirm(ctx, tx)
	if err != nil {
		return solana.Signature{}, LedgerError(err)
	}
	c.logger.Info("transaction confirmed", zap.String("signature", sig.String()))
	return sig, nil
}

func (c *Coordinator) checkInstructions(tx *solana.Transaction) error {
	if len(tx.Message.Instructions) == 0 {
		return apperr.BadRequest("transaction has no instructions")
	}
	keys := tx.Message.AccountKeys
	for i, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) || !keys[ci.ProgramIDIndex].Equals(c.programID) {
			return apperr.BadRequest("instruction %d does not target the records program", i).WithCode(apperr.CodeForeignInstruction)
		}
	}
	return nil
}

// LedgerError classifies a ledger failure for the caller.
func LedgerError(err error) *apperr.Error {
	var pe *program.Error
	switch {
	case errors.Is(err, chain.ErrAnchorExpired):
		return apperr.Ledger(err, "transaction anchor expired; prepare it again").WithCode(apperr.CodeAnchorExpired)
	case errors.Is(err, chain.ErrSignatureVerification):
		return &apperr.Error{Kind: apperr.KindBadRequest, Code: apperr.CodeInvalidSignature, Message: "invalid transaction signature", Err: err}
	case errors.Is(err, chain.ErrAlreadyProcessed):
		return apperr.Ledger(err, "transaction already processed")
	case errors.Is(err, program.ErrUnauthorized):
		return &apperr.Error{Kind: apperr.KindUnauthorized, Message: "signer is not authorized for this operation", Err: err}
	case errors.As(err, &pe):
		return apperr.Ledger(err, pe.Msg).WithCode(snake(pe.Name))
	}
	return apperr.Ledger(err, "failed to submit transaction")
}

func snake(name string) string {
	out := make([]byte, 0, len(name)+4)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}
