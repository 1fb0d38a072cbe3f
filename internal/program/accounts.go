package program

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AccountHeaderLen is the length of the discriminator that precedes every
// account body.
const AccountHeaderLen = 8

// Admin is the singleton account that names the root authority and the
// read and write authority sets.
type Admin struct {
	Authority        solana.PublicKey
	ReadAuthorities  []solana.PublicKey
	WriteAuthorities []solana.PublicKey
}

// IsReader reports whether key may read patient records.
func (a *Admin) IsReader(key solana.PublicKey) bool {
	return indexOf(a.ReadAuthorities, key) >= 0
}

// IsWriter reports whether key may create or update patient records.
func (a *Admin) IsWriter(key solana.PublicKey) bool {
	return indexOf(a.WriteAuthorities, key) >= 0
}

// HistoryEntry records one authority-list mutation.
type HistoryEntry struct {
	Admin     solana.PublicKey
	Authority solana.PublicKey
	Added     bool
	IsRead    bool
	Timestamp int64
}

// Time returns the entry timestamp as a time.Time.
func (e HistoryEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// AuthorityHistory is the append-only log of authority-list mutations,
// bounded at MaxHistoryEntries with the oldest entries evicted first.
type AuthorityHistory struct {
	Admin   solana.PublicKey
	Entries []HistoryEntry
}

// Patient holds one encrypted patient record.
type Patient struct {
	PatientAddress solana.PublicKey
	IsInitialized  bool
	EncryptedData  string
	DataHash       [32]byte
}

// Verify recomputes the digest of the stored data.
func (p *Patient) Verify() error {
	if DataHash(p.EncryptedData) != p.DataHash {
		return ErrDataIntegrity
	}
	return nil
}

// RecordDecoder turns raw account data into typed records. Each
// implementation is bound to one account layout version.
type RecordDecoder interface {
	Version() int
	DecodeAdmin(data []byte) (*Admin, error)
	DecodeHistory(data []byte) (*AuthorityHistory, error)
	DecodePatient(data []byte) (*Patient, error)
}

// RecordEncoder is the write side of a layout version.
type RecordEncoder interface {
	EncodeAdmin(a *Admin) ([]byte, error)
	EncodeHistory(h *AuthorityHistory) ([]byte, error)
	EncodePatient(p *Patient) ([]byte, error)
}

// Layout is a versioned account codec.
type Layout interface {
	RecordDecoder
	RecordEncoder
}

// V1 is the layout of the currently deployed program: an 8-byte
// discriminator followed by the Borsh-encoded fields in declaration order.
var V1 Layout = layoutV1{}

type layoutV1 struct{}

func (layoutV1) Version() int { return 1 }

func (layoutV1) DecodeAdmin(data []byte) (*Admin, error) {
	var a Admin
	if err := decodeAccount(data, AdminDiscriminator, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (layoutV1) DecodeHistory(data []byte) (*AuthorityHistory, error) {
	var h AuthorityHistory
	if err := decodeAccount(data, AuthorityHistoryDiscriminator, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (layoutV1) DecodePatient(data []byte) (*Patient, error) {
	var p Patient
	if err := decodeAccount(data, PatientDiscriminator, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (layoutV1) EncodeAdmin(a *Admin) ([]byte, error) {
	return encodeAccount(AdminDiscriminator, a)
}

func (layoutV1) EncodeHistory(h *AuthorityHistory) ([]byte, error) {
	return encodeAccount(AuthorityHistoryDiscriminator, h)
}

func (layoutV1) EncodePatient(p *Patient) ([]byte, error) {
	return encodeAccount(PatientDiscriminator, p)
}

// decodeAccount checks the header and decodes the body. Trailing bytes are
// ignored: deployed accounts are allocated at their maximum size and carry
// zero padding after the body.
func decodeAccount(data []byte, want Discriminator, v any) error {
	if len(data) < AccountHeaderLen {
		return ErrAccountDidNotDeserialize
	}
	if !bytes.Equal(data[:AccountHeaderLen], want[:]) {
		return ErrAccountDiscriminatorMismatch
	}
	if err := bin.NewBorshDecoder(data[AccountHeaderLen:]).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountDidNotDeserialize, err)
	}
	return nil
}

func encodeAccount(d Discriminator, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return buf.Bytes(), nil
}

func indexOf(keys []solana.PublicKey, key solana.PublicKey) int {
	for i, k := range keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}
