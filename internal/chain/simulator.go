package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// DefaultAnchorWindow is the number of blocks for which a blockhash is
// accepted after it was produced.
const DefaultAnchorWindow = 150

// Record is one processed transaction in the simulator's journal.
type Record struct {
	Signature solana.Signature
	Height    uint64
	Err       error
	Logs      []string
}

// Simulator is an in-memory, thread-safe ledger that executes registered
// programs. It verifies signatures, enforces the blockhash validity window,
// rejects replays and commits each transaction atomically. Every processed
// transaction produces one block.
type Simulator struct {
	mu       sync.RWMutex
	programs map[solana.PublicKey]*program.Program
	accounts map[solana.PublicKey]*program.Account
	hashes   map[solana.Hash]uint64
	seen     map[solana.Signature]struct{}
	journal  []Record
	latest   solana.Hash
	height   uint64
	window   uint64
	now      func() time.Time
	logger   *zap.Logger
}

// NewSimulator creates a Simulator at height 0 with the given programs
// deployed.
func NewSimulator(logger *zap.Logger, programs ...*program.Program) *Simulator {
	s := &Simulator{
		programs: make(map[solana.PublicKey]*program.Program),
		accounts: make(map[solana.PublicKey]*program.Account),
		hashes:   make(map[solana.Hash]uint64),
		seen:     make(map[solana.Signature]struct{}),
		window:   DefaultAnchorWindow,
		now:      time.Now,
		logger:   logger,
	}
	for _, p := range programs {
		s.programs[p.ID()] = p
	}
	s.produceBlock()
	return s
}

// SetClock overrides the clock used for on-ledger timestamps.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AdvanceBlocks produces n empty blocks.
func (s *Simulator) AdvanceBlocks(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := uint64(0); i < n; i++ {
		s.produceBlock()
	}
}

// Height returns the current block height.
func (s *Simulator) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Journal returns a copy of the processed transactions, oldest first.
func (s *Simulator) Journal() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.journal...)
}

// SetAccount overwrites an account outside of any transaction.
func (s *Simulator) SetAccount(address, owner solana.PublicKey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[address] = &program.Account{Owner: owner, Data: append([]byte(nil), data...)}
}

// LatestAnchor implements Client.
func (s *Simulator) LatestAnchor(_ context.Context) (*Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Anchor{Blockhash: s.latest, LastValidBlockHeight: s.height + s.window}, nil
}

// GetAccount implements Client.
func (s *Simulator) GetAccount(_ context.Context, address solana.PublicKey) (*AccountInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[address]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &AccountInfo{Address: address, Owner: acct.Owner, Data: append([]byte(nil), acct.Data...)}, nil
}

// GetProgramAccounts implements Client. Results are ordered by address.
func (s *Simulator) GetProgramAccounts(_ context.Context, programID solana.PublicKey, filter MemcmpFilter) ([]*AccountInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AccountInfo
	for addr, acct := range s.accounts {
		if !acct.Owner.Equals(programID) || !memcmp(acct.Data, filter) {
			continue
		}
		out = append(out, &AccountInfo{Address: addr, Owner: acct.Owner, Data: append([]byte(nil), acct.Data...)})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

// SendAndConfirm implements Client. The transaction is executed and
// committed before it returns.
func (s *Simulator) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	if err := VerifySignatures(tx); err != nil {
		return solana.Signature{}, err
	}
	sig := tx.Signatures[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[sig]; dup {
		return solana.Signature{}, ErrAlreadyProcessed
	}
	produced, ok := s.hashes[tx.Message.RecentBlockhash]
	if !ok || s.height > produced+s.window {
		return solana.Signature{}, ErrAnchorExpired
	}
	ixs, err := Decompile(tx)
	if err != nil {
		return solana.Signature{}, err
	}

	overlay := &overlayStore{base: s.accounts, writes: make(map[solana.PublicKey]*program.Account)}
	var logs []string
	env := &program.Env{
		Accounts: overlay,
		Now:      s.now(),
		Log:      func(msg string) { logs = append(logs, "Program log: "+msg) },
	}

	var txErr *TxError
	for i, ix := range ixs {
		prog, ok := s.programs[ix.ProgramID]
		if !ok {
			txErr = &TxError{Signature: sig, Instruction: i, Err: fmt.Errorf("program %s is not deployed", ix.ProgramID)}
			break
		}
		if err := prog.Process(env, ix); err != nil {
			txErr = &TxError{Signature: sig, Instruction: i, Err: err}
			break
		}
	}

	s.seen[sig] = struct{}{}
	rec := Record{Signature: sig, Height: s.height, Logs: logs}
	if txErr != nil {
		txErr.Logs = logs
		rec.Err = txErr.Err
	} else {
		for addr, acct := range overlay.writes {
			s.accounts[addr] = acct
		}
	}
	s.journal = append(s.journal, rec)
	s.produceBlock()

	if txErr != nil {
		s.logger.Debug("simulated transaction failed", zap.String("signature", sig.String()), zap.Error(txErr.Err))
		return solana.Signature{}, txErr
	}
	s.logger.Debug("simulated transaction committed", zap.String("signature", sig.String()), zap.Int("instructions", len(ixs)))
	return sig, nil
}

// produceBlock advances the height and derives the next blockhash from the
// previous one. Caller holds mu.
func (s *Simulator) produceBlock() {
	s.height++
	var h [8]byte
	binary.LittleEndian.PutUint64(h[:], s.height)
	next := sha256.Sum256(append(s.latest[:], h[:]...))
	s.latest = solana.Hash(next)
	s.hashes[s.latest] = s.height

	for hash, produced := range s.hashes {
		if produced+s.window < s.height {
			delete(s.hashes, hash)
		}
	}
}

func memcmp(data []byte, f MemcmpFilter) bool {
	end := f.Offset + uint64(len(f.Bytes))
	if end > uint64(len(data)) {
		return false
	}
	return bytes.Equal(data[f.Offset:end], f.Bytes)
}

// overlayStore buffers the writes of one transaction so a failure leaves the
// committed state untouched.
type overlayStore struct {
	base   map[solana.PublicKey]*program.Account
	writes map[solana.PublicKey]*program.Account
}

func (o *overlayStore) Load(address solana.PublicKey) (*program.Account, bool) {
	if acct, ok := o.writes[address]; ok {
		return acct, true
	}
	acct, ok := o.base[address]
	return acct, ok
}

func (o *overlayStore) Store(address solana.PublicKey, acct *program.Account) {
	o.writes[address] = &program.Account{Owner: acct.Owner, Data: append([]byte(nil), acct.Data...)}
}
