package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// RPCConfig tunes an RPCClient.
type RPCConfig struct {
	Commitment     rpc.CommitmentType
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

func (c *RPCConfig) applyDefaults() {
	if c.Commitment == "" {
		c.Commitment = rpc.CommitmentConfirmed
	}
	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
}

// RPCClient talks JSON-RPC to a live cluster.
type RPCClient struct {
	rpc    *rpc.Client
	cfg    RPCConfig
	logger *zap.Logger
}

// NewRPCClient creates an RPCClient for endpoint.
func NewRPCClient(endpoint string, cfg RPCConfig, logger *zap.Logger) *RPCClient {
	cfg.applyDefaults()
	return &RPCClient{rpc: rpc.New(endpoint), cfg: cfg, logger: logger}
}

// LatestAnchor implements Client.
func (c *RPCClient) LatestAnchor(ctx context.Context) (*Anchor, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, errors.New("get latest blockhash: empty response")
	}
	return &Anchor{Blockhash: out.Value.Blockhash, LastValidBlockHeight: out.Value.LastValidBlockHeight}, nil
}

// GetAccount implements Client.
func (c *RPCClient) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.cfg.Commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, ErrAccountNotFound
	}
	return &AccountInfo{Address: address, Owner: out.Value.Owner, Data: out.Value.Data.GetBinary()}, nil
}

// GetProgramAccounts implements Client.
func (c *RPCClient) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, filter MemcmpFilter) ([]*AccountInfo, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.cfg.Commitment,
		Filters: []rpc.RPCFilter{{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: filter.Offset, Bytes: solana.Base58(filter.Bytes)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}
	accounts := make([]*AccountInfo, 0, len(out))
	for _, ka := range out {
		if ka == nil || ka.Account == nil {
			continue
		}
		accounts = append(accounts, &AccountInfo{
			Address: ka.Pubkey,
			Owner:   ka.Account.Owner,
			Data:    ka.Account.Data.GetBinary(),
		})
	}
	return accounts, nil
}

// SendAndConfirm implements Client. It submits with preflight enabled and
// polls the signature status until the configured commitment is reached.
func (c *RPCClient) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if len(RequiredSigners(tx)) == 0 || len(tx.Signatures) == 0 {
		return solana.Signature{}, fmt.Errorf("%w: %w", ErrSignatureVerification, ErrNoSigners)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.cfg.Commitment,
	})
	if err != nil {
		return solana.Signature{}, classifyRPCError(err)
	}
	c.logger.Debug("transaction sent", zap.String("signature", sig.String()))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return solana.Signature{}, &TxError{Signature: sig, Instruction: instructionIndex(st.Err), Err: statusError(st.Err)}
			}
			if reached(st.ConfirmationStatus, c.cfg.Commitment) {
				return sig, nil
			}
		}
		select {
		case <-ctx.Done():
			return solana.Signature{}, fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	}
	return false
}

var customErrRe = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// classifyRPCError maps cluster error text onto the package's sentinel and
// program errors.
func classifyRPCError(err error) error {
	msg := err.Error()
	if m := customErrRe.FindStringSubmatch(msg); m != nil {
		code, perr := strconv.ParseUint(m[1], 16, 32)
		if perr == nil {
			pe, _ := program.ErrorFromCode(uint32(code))
			return &TxError{Err: pe, Logs: []string{msg}}
		}
	}
	switch {
	case strings.Contains(msg, "Blockhash not found"), strings.Contains(msg, "BlockhashNotFound"):
		return fmt.Errorf("%w: %v", ErrAnchorExpired, err)
	case strings.Contains(msg, "already been processed"), strings.Contains(msg, "AlreadyProcessed"):
		return fmt.Errorf("%w: %v", ErrAlreadyProcessed, err)
	case strings.Contains(msg, "signature verification failure"), strings.Contains(msg, "SignatureFailure"):
		return fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	return fmt.Errorf("send transaction: %w", err)
}

// statusError decodes the err field of a signature status, which the
// cluster reports as {"InstructionError":[idx,{"Custom":code}]}.
func statusError(raw any) error {
	if code, ok := customCode(raw); ok {
		pe, _ := program.ErrorFromCode(code)
		return pe
	}
	if s, ok := raw.(string); ok && s == "BlockhashNotFound" {
		return ErrAnchorExpired
	}
	return fmt.Errorf("transaction error: %v", raw)
}

func instructionError(raw any) ([]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	parts, ok := m["InstructionError"].([]any)
	if !ok || len(parts) != 2 {
		return nil, false
	}
	return parts, true
}

func instructionIndex(raw any) int {
	parts, ok := instructionError(raw)
	if !ok {
		return 0
	}
	if idx, ok := parts[0].(float64); ok {
		return int(idx)
	}
	return 0
}

func customCode(raw any) (uint32, bool) {
	parts, ok := instructionError(raw)
	if !ok {
		return 0, false
	}
	detail, ok := parts[1].(map[string]any)
	if !ok {
		return 0, false
	}
	code, ok := detail["Custom"].(float64)
	if !ok {
		return 0, false
	}
	return uint32(code), true
}
