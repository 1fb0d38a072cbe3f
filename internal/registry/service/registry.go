package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/patientdata"
	"github.com/jmerrifield20/MedRecordLedger/internal/pinning"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
	"github.com/jmerrifield20/MedRecordLedger/internal/signing"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

// RegistryService contains the business logic behind the HTTP surface:
// preparing and relaying ledger transactions, brokering record views and
// reading authority state.
type RegistryService struct {
	chain     chain.Client
	builder   *txbuilder.Builder
	coord     *signing.Coordinator
	sealer    *patientdata.Sealer
	tokens    *patientdata.TokenStore
	seeds     *seedindex.Index
	pinner    pinning.Pinner     // Disabled = attachments rejected
	decoder   program.RecordDecoder
	operators map[solana.PublicKey]struct{}
	viewURL   string // public base URL embedded in view links
	logger    *zap.Logger
}

// NewRegistryService creates a RegistryService. Attachments are disabled and
// no wallet may request service co-signatures until configured.
func NewRegistryService(
	client chain.Client,
	builder *txbuilder.Builder,
	coord *signing.Coordinator,
	sealer *patientdata.Sealer,
	tokens *patientdata.TokenStore,
	seeds *seedindex.Index,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		chain:     client,
		builder:   builder,
		coord:     coord,
		sealer:    sealer,
		tokens:    tokens,
		seeds:     seeds,
		pinner:    pinning.Disabled{},
		decoder:   program.V1,
		operators: make(map[solana.PublicKey]struct{}),
		logger:    logger,
	}
}

// SetPinner configures where patient attachments are pinned.
func (s *RegistryService) SetPinner(p pinning.Pinner) {
	s.pinner = p
}

// SetOperators replaces the set of wallets allowed to request co-signed
// authority transactions.
func (s *RegistryService) SetOperators(wallets []solana.PublicKey) {
	ops := make(map[solana.PublicKey]struct{}, len(wallets))
	for _, w := range wallets {
		ops[w] = struct{}{}
	}
	s.operators = ops
}

// SetViewBaseURL sets the public URL prefix of view links.
func (s *RegistryService) SetViewBaseURL(url string) {
	s.viewURL = strings.TrimRight(url, "/")
}

// SetDecoder overrides the account layout used to read ledger state.
func (s *RegistryService) SetDecoder(d program.RecordDecoder) {
	s.decoder = d
}

// RunTokenSweeper evicts expired view tokens every interval until ctx is
// cancelled. A non-positive interval means one minute.
func (s *RegistryService) RunTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tokens.Sweep(); n > 0 {
				s.logger.Debug("swept expired view tokens", zap.Int("count", n))
			}
		}
	}
}

// Authorities returns the current Admin account.
func (s *RegistryService) Authorities(ctx context.Context) (*model.AuthoritiesResponse, error) {
	admin, err := s.loadAdmin(ctx)
	if err != nil {
		return nil, err
	}
	return &model.AuthoritiesResponse{
		Address:          s.builder.AdminAddress().String(),
		Authority:        admin.Authority.String(),
		ReadAuthorities:  keyStrings(admin.ReadAuthorities),
		WriteAuthorities: keyStrings(admin.WriteAuthorities),
	}, nil
}

// History returns the authority change log. A deployment with no
// authority changes yet has an empty log.
func (s *RegistryService) History(ctx context.Context) (*model.HistoryResponse, error) {
	out := &model.HistoryResponse{
		Address: s.builder.HistoryAddress().String(),
		Admin:   s.builder.Authority().String(),
		Entries: []model.HistoryEntry{},
	}
	acct, err := s.chain.GetAccount(ctx, s.builder.HistoryAddress())
	if errors.Is(err, chain.ErrAccountNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, apperr.Ledger(err, "failed to fetch authority history")
	}
	h, err := s.decoder.DecodeHistory(acct.Data)
	if err != nil {
		return nil, apperr.Ledger(err, "failed to decode authority history")
	}
	out.Admin = h.Admin.String()
	for _, e := range h.Entries {
		out.Entries = append(out.Entries, model.HistoryEntry{
			Admin:     e.Admin.String(),
			Authority: e.Authority.String(),
			Added:     e.Added,
			IsRead:    e.IsRead,
			Timestamp: e.Time(),
		})
	}
	return out, nil
}

// Submit validates a fully signed transaction and relays it. The returned
// type is the name of its first instruction, for reporting.
func (s *RegistryService) Submit(ctx context.Context, req *model.SubmitTransactionRequest) (*model.SubmitTransactionResponse, string, error) {
	txType := transactionType(req.SerializedTransaction)
	sig, err := s.coord.Finalize(ctx, req.SerializedTransaction)
	if err != nil {
		return nil, txType, err
	}
	return &model.SubmitTransactionResponse{Signature: sig.String()}, txType, nil
}

func transactionType(serialized string) string {
	tx, err := chain.DecodeTransaction(serialized)
	if err != nil || len(tx.Message.Instructions) == 0 {
		return "unknown"
	}
	name, _, err := program.DecodeInstruction(tx.Message.Instructions[0].Data)
	if err != nil {
		return "unknown"
	}
	return name
}

func (s *RegistryService) loadAdmin(ctx context.Context) (*program.Admin, error) {
	acct, err := s.chain.GetAccount(ctx, s.builder.AdminAddress())
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, apperr.BadRequest("admin account is not initialized")
	}
	if err != nil {
		return nil, apperr.Ledger(err, "failed to fetch admin account")
	}
	admin, err := s.decoder.DecodeAdmin(acct.Data)
	if err != nil {
		return nil, apperr.Ledger(err, "failed to decode admin account")
	}
	return admin, nil
}

func (s *RegistryService) prepared(p *signing.Prepared) model.PreparedTransaction {
	return model.PreparedTransaction{
		SerializedTransaction: p.SerializedTransaction,
		TransactionType:       p.TransactionType,
		Metadata:              p.Metadata,
		Blockhash:             p.Anchor.Blockhash.String(),
		LastValidBlockHeight:  p.Anchor.LastValidBlockHeight,
	}
}

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, apperr.BadRequest("%s is required", field)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, apperr.BadRequest("%s is not a valid public key", field)
	}
	return key, nil
}

func keyStrings(keys []solana.PublicKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
