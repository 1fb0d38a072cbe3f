// Package seedindex keeps the mapping from Patient account address to the
// seed it was derived from. The seed is needed to address a record again, so
// the map is snapshotted after every insertion and can be rebuilt from a
// ledger scan.
package seedindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// UnknownSeed marks an address found on the ledger whose seed is not known.
const UnknownSeed = "unknown"

var (
	// ErrNotFound is returned for an address with no entry.
	ErrNotFound = errors.New("no seed recorded for address")
	// ErrSeedUnknown is returned for an address marked UnknownSeed.
	ErrSeedUnknown = errors.New("seed for address is unknown")
	// ErrAddressMismatch is returned when a seed does not derive the address.
	ErrAddressMismatch = errors.New("seed does not derive address")
)

// Entry is one snapshot record.
type Entry struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// DeriveFunc returns the Patient address for a seed.
type DeriveFunc func(seed solana.PublicKey) (solana.PublicKey, error)

// Snapshotter persists the index.
type Snapshotter interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Upserter is implemented by stores that can write a single entry. Record
// uses it instead of rewriting the whole snapshot.
type Upserter interface {
	Upsert(ctx context.Context, e Entry) error
}

// Index is a concurrent address → seed map. A zero seed value marks an
// address as unknown.
type Index struct {
	mu        sync.RWMutex
	seeds     map[solana.PublicKey]solana.PublicKey
	persistMu sync.Mutex
	derive    DeriveFunc
	store     Snapshotter
	logger    *zap.Logger
}

// New creates an empty Index. store may be nil to disable persistence.
func New(derive DeriveFunc, store Snapshotter, logger *zap.Logger) *Index {
	return &Index{
		seeds:  make(map[solana.PublicKey]solana.PublicKey),
		derive: derive,
		store:  store,
		logger: logger,
	}
}

// Load replaces the in-memory map with the snapshot. Entries that fail to
// parse or whose seed does not derive their address are dropped and logged.
func (ix *Index) Load(ctx context.Context) error {
	if ix.store == nil {
		return nil
	}
	entries, err := ix.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load seed snapshot: %w", err)
	}

	seeds := make(map[solana.PublicKey]solana.PublicKey, len(entries))
	dropped := 0
	for _, e := range entries {
		addr, err := solana.PublicKeyFromBase58(e.Address)
		if err != nil {
			ix.logger.Warn("dropping seed entry with bad address", zap.String("address", e.Address), zap.Error(err))
			dropped++
			continue
		}
		if e.Seed == UnknownSeed {
			seeds[addr] = solana.PublicKey{}
			continue
		}
		seed, err := solana.PublicKeyFromBase58(e.Seed)
		if err != nil {
			ix.logger.Warn("dropping seed entry with bad seed", zap.String("address", e.Address), zap.Error(err))
			dropped++
			continue
		}
		if err := ix.verify(addr, seed); err != nil {
			ix.logger.Warn("dropping seed entry", zap.String("address", e.Address), zap.Error(err))
			dropped++
			continue
		}
		seeds[addr] = seed
	}

	ix.mu.Lock()
	ix.seeds = seeds
	ix.mu.Unlock()

	ix.logger.Info("seed index loaded", zap.Int("entries", len(seeds)), zap.Int("dropped", dropped))
	return nil
}

// Record stores seed for address and persists it. A snapshot failure is
// logged, not returned: the in-memory entry stays authoritative.
func (ix *Index) Record(ctx context.Context, address, seed solana.PublicKey) error {
	if err := ix.verify(address, seed); err != nil {
		return err
	}
	ix.mu.Lock()
	ix.seeds[address] = seed
	ix.mu.Unlock()

	if u, ok := ix.store.(Upserter); ok {
		if err := u.Upsert(ctx, Entry{Address: address.String(), Seed: seed.String()}); err != nil {
			ix.logger.Error("seed snapshot write failed", zap.String("address", address.String()), zap.Error(err))
		}
		return nil
	}
	ix.persist(ctx)
	return nil
}

// Lookup returns the seed of address.
func (ix *Index) Lookup(address solana.PublicKey) (solana.PublicKey, error) {
	ix.mu.RLock()
	seed, ok := ix.seeds[address]
	ix.mu.RUnlock()
	if !ok {
		return solana.PublicKey{}, ErrNotFound
	}
	if seed.IsZero() {
		return solana.PublicKey{}, ErrSeedUnknown
	}
	return seed, nil
}

// MarkUnknown records address as having an unknown seed unless an entry
// already exists. It reports whether an entry was added.
func (ix *Index) MarkUnknown(address solana.PublicKey) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.seeds[address]; ok {
		return false
	}
	ix.seeds[address] = solana.PublicKey{}
	return true
}

// Entries returns the index ordered by address.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	keys := make([]solana.PublicKey, 0, len(ix.seeds))
	for k := range ix.seeds {
		keys = append(keys, k)
	}
	out := make([]Entry, 0, len(keys))
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		seed := UnknownSeed
		if s := ix.seeds[k]; !s.IsZero() {
			seed = s.String()
		}
		out = append(out, Entry{Address: k.String(), Seed: seed})
	}
	ix.mu.RUnlock()
	return out
}

// Len returns the number of entries, unknown ones included.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.seeds)
}

// Persist writes the current state to the snapshot store.
func (ix *Index) Persist(ctx context.Context) error {
	if ix.store == nil {
		return nil
	}
	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()
	return ix.store.Save(ctx, ix.Entries())
}

func (ix *Index) persist(ctx context.Context) {
	if err := ix.Persist(ctx); err != nil {
		ix.logger.Error("seed snapshot write failed", zap.Error(err))
	}
}

func (ix *Index) verify(address, seed solana.PublicKey) error {
	derived, err := ix.derive(seed)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}
	if !derived.Equals(address) {
		return fmt.Errorf("%w: %s derives %s, not %s", ErrAddressMismatch, seed, derived, address)
	}
	return nil
}
